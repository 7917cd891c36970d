package wire

import (
	"bytes"
	"fmt"

	"github.com/DoyleJ11/rps-lan/internal/engine"
)

type Stage string

// Stage values are the exact strings carried after DISCONNECT.
const (
	StageNoGame       Stage = "no_game"
	StageMidGame      Stage = "mid_game"
	StageGameComplete Stage = "game_complete"
)

func (s Stage) Valid() bool {
	switch s {
	case StageNoGame, StageMidGame, StageGameComplete:
		return true
	default:
		return false
	}
}

// Message is one session-channel message, decoded once at the transport boundary.
type Message interface{ isMessage() }

type Disconnect struct{ Stage Stage }

type Chat struct{ Text string }

type GameMove struct{ Choice engine.Choice }

func (Disconnect) isMessage() {}
func (Chat) isMessage()       {}
func (GameMove) isMessage()   {}

const (
	kindDisconnect = "DISCONNECT"
	kindChat       = "CHAT"
	kindGame       = "GAME"
)

// EncodeMessage returns the frame body: a kind tag followed by the payload.
func EncodeMessage(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case Disconnect:
		if !msg.Stage.Valid() {
			return nil, fmt.Errorf("%w: disconnect stage %q", ErrMalformed, msg.Stage)
		}
		return []byte(kindDisconnect + string(msg.Stage)), nil
	case Chat:
		return []byte(kindChat + msg.Text), nil
	case GameMove:
		if !msg.Choice.Valid() {
			return nil, fmt.Errorf("%w: choice %q", ErrMalformed, msg.Choice)
		}
		return []byte(kindGame + string(msg.Choice)), nil
	default:
		return nil, fmt.Errorf("%w: unknown message %T", ErrMalformed, m)
	}
}

func DecodeMessage(body []byte) (Message, error) {
	switch {
	case bytes.HasPrefix(body, []byte(kindDisconnect)):
		stage := Stage(body[len(kindDisconnect):])
		if !stage.Valid() {
			return nil, fmt.Errorf("%w: disconnect stage %q", ErrMalformed, stage)
		}
		return Disconnect{Stage: stage}, nil

	case bytes.HasPrefix(body, []byte(kindChat)):
		return Chat{Text: string(body[len(kindChat):])}, nil

	case bytes.HasPrefix(body, []byte(kindGame)):
		choice, err := engine.ParseChoice(string(body[len(kindGame):]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return GameMove{Choice: choice}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind in %q", ErrMalformed, truncate(body, 16))
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
