// Package session runs the single active game session: it drives discovery
// and the transport, feeds peer messages into the round engine, and reports
// lifecycle and results to external collaborators.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/rps-lan/internal/discovery"
	"github.com/DoyleJ11/rps-lan/internal/engine"
)

var (
	ErrBusy             = errors.New("a session is already active")
	ErrNoSession        = errors.New("no active session")
	ErrNotConnected     = errors.New("session is not connected to a peer")
	ErrControllerClosed = errors.New("session controller is shut down")
)

type Role string

const (
	RoleHost   Role = "host"
	RoleJoiner Role = "joiner"
)

type Stage string

const (
	StageAnnouncing   Stage = "announcing"
	StageAwaitingPeer Stage = "awaiting_peer"
	StageJoining      Stage = "joining"
	StageConnected    Stage = "connected"
	StageClosing      Stage = "closing"
)

// SessionConfig is fixed once a session starts.
type SessionConfig struct {
	Role          Role
	LocalAddress  string
	ServerPort    int
	BroadcastPort int
	TotalRounds   int
}

type Config struct {
	LocalAddress     string
	BroadcastAddress string
	ServerPort       int
	BroadcastPort    int
	DiscoveryTimeout time.Duration
	ConnectTimeout   time.Duration
	// CloseGrace is how long to wait for the peer to close after we send
	// DISCONNECT before shutting the socket ourselves.
	CloseGrace time.Duration
}

func (c Config) closeGrace() time.Duration {
	if c.CloseGrace <= 0 {
		return 3 * time.Second
	}
	return c.CloseGrace
}

type RoundResult struct {
	Round   int
	Local   engine.Choice
	Remote  engine.Choice
	Outcome engine.Outcome
}

// Listener receives controller events. All calls come from the controller
// goroutine, one at a time.
type Listener interface {
	OnConnected(peerAddress string)
	// OnDisconnected is called exactly once per session. reason is nil for
	// an orderly close.
	OnDisconnected(reason error)
	OnChat(text string)
	OnRoundStarted(round, total int)
	OnAwaitingOpponent(round int)
	OnOpponentChose(round int)
	OnRoundResolved(result RoundResult)
	OnDropout(forfeitedRounds int, creditedAsWinner bool)
}

type Profile interface {
	CurrentUsername() string
	RecordOutcome(ctx context.Context, delta engine.Tally) error
}

type Settings interface {
	DesiredTotalRounds() int
}

type RoundView struct {
	Phase        engine.Phase  `json:"phase"`
	CurrentRound int           `json:"current_round"`
	TotalRounds  int           `json:"total_rounds"`
	LocalChoice  engine.Choice `json:"local_choice,omitempty"`
	RemoteChosen bool          `json:"remote_chosen"`
}

type View struct {
	Active        bool       `json:"active"`
	SessionID     string     `json:"session_id,omitempty"`
	Role          Role       `json:"role,omitempty"`
	Stage         Stage      `json:"stage,omitempty"`
	LocalAddress  string     `json:"local_address,omitempty"`
	ServerPort    int        `json:"server_port,omitempty"`
	BroadcastPort int        `json:"broadcast_port,omitempty"`
	PeerAddress   string     `json:"peer_address,omitempty"`
	PeerUsername  string     `json:"peer_username,omitempty"`
	Round         *RoundView `json:"round,omitempty"`
}

// Msg is anything the controller goroutine consumes.
type Msg interface{ isSessionMsg() }

type Host struct {
	TotalRounds int // 0 uses Settings.DesiredTotalRounds
	Reply       chan error
}

type Join struct {
	Target discovery.HostRecord
	Reply  chan error
}

type Submit struct {
	Choice engine.Choice
	Reply  chan error
}

type SendChat struct {
	Text  string
	Reply chan error
}

type Disconnect struct {
	Reply chan error
}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

func (Host) isSessionMsg()       {}
func (Join) isSessionMsg()       {}
func (Submit) isSessionMsg()     {}
func (SendChat) isSessionMsg()   {}
func (Disconnect) isSessionMsg() {}
func (GetState) isSessionMsg()   {}
func (Shutdown) isSessionMsg()   {}
