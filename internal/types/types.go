package types

import "github.com/DoyleJ11/rps-lan/internal/engine"

// Client -> Server over the websocket.
type ClientMessage struct {
	Type   string `json:"type"` // "choose" | "chat" | "disconnect"
	Choice string `json:"choice,omitempty"`
	Text   string `json:"text,omitempty"`
}

const (
	EvtConnected        = "connected"
	EvtDisconnected     = "disconnected"
	EvtChat             = "chat"
	EvtRoundStarted     = "round_started"
	EvtAwaitingOpponent = "awaiting_opponent"
	EvtOpponentChose    = "opponent_chose"
	EvtRoundResolved    = "round_resolved"
	EvtDropout          = "dropout"
	EvtError            = "error"
)

// Server -> Client.
type ServerMessage struct {
	Type             string         `json:"type"`
	PeerAddress      string         `json:"peer_address,omitempty"`
	Text             string         `json:"text,omitempty"`
	Round            int            `json:"round,omitempty"`
	TotalRounds      int            `json:"total_rounds,omitempty"`
	Local            engine.Choice  `json:"local,omitempty"`
	Remote           engine.Choice  `json:"remote,omitempty"`
	Outcome          engine.Outcome `json:"outcome,omitempty"`
	ForfeitedRounds  int            `json:"forfeited_rounds,omitempty"`
	CreditedAsWinner bool           `json:"credited_as_winner,omitempty"`
	Error            string         `json:"error,omitempty"`
}

type HostRequest struct {
	TotalRounds int `json:"total_rounds,omitempty"`
}

type JoinRequest struct {
	Address     string `json:"address"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	TotalRounds int    `json:"total_rounds"`
}

type ChoiceRequest struct {
	Choice string `json:"choice"`
}

type ChatRequest struct {
	Text string `json:"text"`
}
