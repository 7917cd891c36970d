package engine

import (
	"errors"
)

var ErrChoiceAlreadySubmitted = errors.New("local choice already submitted this round")
var ErrRemoteAlreadySubmitted = errors.New("remote choice already received this round")
var ErrInvalidChoice = errors.New("invalid choice")
var ErrInvalidRounds = errors.New("total rounds must be at least 1")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrSessionComplete = errors.New("session already complete")

type Choice string

const (
	Rock     Choice = "Rock"
	Paper    Choice = "Paper"
	Scissors Choice = "Scissors"
)

type Outcome string

const (
	Win  Outcome = "win"
	Lose Outcome = "lose"
	Tie  Outcome = "tie"
)

type Phase string

const (
	PhaseWaiting   Phase = "waiting_for_choices"
	PhaseComplete  Phase = "session_complete"
	PhaseForfeited Phase = "forfeited"
)

type Actor string

const (
	// ActorPeerDropped: the local side observed the peer vanish mid-game.
	ActorPeerDropped Actor = "peer_dropped"
	// ActorSelfQuit: the local side is leaving mid-game.
	ActorSelfQuit Actor = "self_quit"
)

type State struct {
	Phase        Phase
	CurrentRound int
	TotalRounds  int
	LocalChoice  Choice
	RemoteChoice Choice
}

// Tally is a delta applied to the profile counters.
type Tally struct {
	Wins   int
	Losses int
	Ties   int
}

type CommandType string

const (
	CmdSubmitLocal   CommandType = "SubmitLocal"
	CmdReceiveRemote CommandType = "ReceiveRemote"
	CmdDropout       CommandType = "Dropout"
)

/*
	CmdSubmitLocal   -> EvtAwaitingOpponent                        (remote still pending)
	                 -> EvtRoundResolved -> EvtRoundAdvanced | EvtSessionComplete
	CmdReceiveRemote -> EvtOpponentChose                           (local still pending)
	                 -> EvtRoundResolved -> EvtRoundAdvanced | EvtSessionComplete
	CmdDropout       -> EvtDropout
*/

type Command struct {
	Type   CommandType
	Choice Choice
	Actor  Actor
}

type EventType string

const (
	EvtAwaitingOpponent EventType = "AwaitingOpponent"
	EvtOpponentChose    EventType = "OpponentChose"
	EvtRoundResolved    EventType = "RoundResolved"
	EvtRoundAdvanced    EventType = "RoundAdvanced"
	EvtSessionComplete  EventType = "SessionComplete"
	EvtDropout          EventType = "Dropout"
)

type Event struct {
	Type    EventType
	Round   int
	Local   Choice
	Remote  Choice
	Outcome Outcome
	Delta   Tally

	ForfeitedRounds  int
	CreditedAsWinner bool
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseWaiting {
		return nil, s, ErrSessionComplete
	}

	newState := s

	switch cmd.Type {
	case CmdSubmitLocal:
		if !cmd.Choice.Valid() {
			return nil, s, ErrInvalidChoice
		}
		if s.LocalChoice != "" {
			return nil, s, ErrChoiceAlreadySubmitted
		}
		newState.LocalChoice = cmd.Choice
		if newState.RemoteChoice == "" {
			return []Event{{Type: EvtAwaitingOpponent, Round: s.CurrentRound}}, newState, nil
		}
		events, resolved := resolveRound(newState)
		return events, resolved, nil

	case CmdReceiveRemote:
		if !cmd.Choice.Valid() {
			return nil, s, ErrInvalidChoice
		}
		if s.RemoteChoice != "" {
			return nil, s, ErrRemoteAlreadySubmitted
		}
		newState.RemoteChoice = cmd.Choice
		if newState.LocalChoice == "" {
			return []Event{{Type: EvtOpponentChose, Round: s.CurrentRound}}, newState, nil
		}
		events, resolved := resolveRound(newState)
		return events, resolved, nil

	case CmdDropout:
		forfeited := s.RemainingRounds()
		evt := Event{Type: EvtDropout, Round: s.CurrentRound, ForfeitedRounds: forfeited}

		switch cmd.Actor {
		case ActorPeerDropped:
			evt.CreditedAsWinner = true
			evt.Delta = Tally{Wins: forfeited}
		case ActorSelfQuit:
			evt.Delta = Tally{Losses: forfeited}
		default:
			return nil, s, ErrUnsupportedCommand
		}

		newState.LocalChoice = ""
		newState.RemoteChoice = ""
		newState.Phase = PhaseForfeited
		return []Event{evt}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// resolveRound expects both choices to be present.
func resolveRound(s State) ([]Event, State) {
	outcome := Resolve(s.LocalChoice, s.RemoteChoice)

	events := []Event{{
		Type:    EvtRoundResolved,
		Round:   s.CurrentRound,
		Local:   s.LocalChoice,
		Remote:  s.RemoteChoice,
		Outcome: outcome,
		Delta:   outcome.Tally(),
	}}

	s.LocalChoice = ""
	s.RemoteChoice = ""

	if s.CurrentRound < s.TotalRounds {
		s.CurrentRound++
		events = append(events, Event{Type: EvtRoundAdvanced, Round: s.CurrentRound})
		return events, s
	}

	s.Phase = PhaseComplete
	events = append(events, Event{Type: EvtSessionComplete, Round: s.CurrentRound})
	return events, s
}

// Resolve scores local against remote: (local - remote) mod 3 gives
// 0 tie, 1 win, 2 lose with Rock=0, Paper=1, Scissors=2.
func Resolve(local, remote Choice) Outcome {
	delta := ((local.index()-remote.index())%3 + 3) % 3
	switch delta {
	case 0:
		return Tie
	case 1:
		return Win
	default:
		return Lose
	}
}
