package engine

import (
	"errors"
	"testing"
)

func mustState(t *testing.T, total int) State {
	t.Helper()
	s, err := NewState(total)
	if err != nil {
		t.Fatalf("NewState(%d): %v", total, err)
	}
	return s
}

func findEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}

func TestResolve_AllPairs(t *testing.T) {
	cases := []struct {
		local, remote Choice
		want          Outcome
	}{
		{Rock, Scissors, Win},
		{Rock, Paper, Lose},
		{Paper, Scissors, Lose},
		{Paper, Rock, Win},
		{Scissors, Paper, Win},
		{Scissors, Rock, Lose},
		{Rock, Rock, Tie},
		{Paper, Paper, Tie},
		{Scissors, Scissors, Tie},
	}

	for _, tc := range cases {
		t.Run(string(tc.local)+"_vs_"+string(tc.remote), func(t *testing.T) {
			if got := Resolve(tc.local, tc.remote); got != tc.want {
				t.Fatalf("Resolve(%s, %s): got %s, want %s", tc.local, tc.remote, got, tc.want)
			}
		})
	}
}

func TestApply_SingleChoiceDoesNotResolve(t *testing.T) {
	cases := []struct {
		name     string
		cmd      Command
		wantEvt  EventType
		checkSet func(State) bool
	}{
		{
			name:     "local first",
			cmd:      Command{Type: CmdSubmitLocal, Choice: Rock},
			wantEvt:  EvtAwaitingOpponent,
			checkSet: func(s State) bool { return s.LocalChoice == Rock && s.RemoteChoice == "" },
		},
		{
			name:     "remote first",
			cmd:      Command{Type: CmdReceiveRemote, Choice: Paper},
			wantEvt:  EvtOpponentChose,
			checkSet: func(s State) bool { return s.RemoteChoice == Paper && s.LocalChoice == "" },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, s, err := Apply(mustState(t, 3), tc.cmd)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if len(events) != 1 || events[0].Type != tc.wantEvt {
				t.Fatalf("want single %s event, got %+v", tc.wantEvt, events)
			}
			if ContainsEvent(events, EvtRoundResolved) {
				t.Fatalf("round must not resolve with one choice")
			}
			if !tc.checkSet(s) {
				t.Fatalf("unexpected state %+v", s)
			}
			if s.CurrentRound != 1 {
				t.Fatalf("round advanced early: %d", s.CurrentRound)
			}
		})
	}
}

func TestApply_SecondChoiceResolvesAndAdvances(t *testing.T) {
	s := mustState(t, 3)

	_, s, err := Apply(s, Command{Type: CmdReceiveRemote, Choice: Scissors})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	events, s, err := Apply(s, Command{Type: CmdSubmitLocal, Choice: Rock})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	resolved, ok := findEvent(events, EvtRoundResolved)
	if !ok {
		t.Fatalf("expected EvtRoundResolved, got %+v", events)
	}
	if resolved.Outcome != Win || resolved.Round != 1 || resolved.Delta != (Tally{Wins: 1}) {
		t.Fatalf("unexpected resolution %+v", resolved)
	}
	if !ContainsEvent(events, EvtRoundAdvanced) {
		t.Fatalf("expected EvtRoundAdvanced")
	}
	if s.CurrentRound != 2 || s.LocalChoice != "" || s.RemoteChoice != "" {
		t.Fatalf("choices must clear and round advance, got %+v", s)
	}
}

func TestApply_DuplicateSubmissionsRejected(t *testing.T) {
	s := mustState(t, 2)
	_, s, _ = Apply(s, Command{Type: CmdSubmitLocal, Choice: Rock})

	_, after, err := Apply(s, Command{Type: CmdSubmitLocal, Choice: Paper})
	if !errors.Is(err, ErrChoiceAlreadySubmitted) {
		t.Fatalf("want ErrChoiceAlreadySubmitted, got %v", err)
	}
	if after.LocalChoice != Rock {
		t.Fatalf("rejected submit must not change state, got %+v", after)
	}

	s2 := mustState(t, 2)
	_, s2, _ = Apply(s2, Command{Type: CmdReceiveRemote, Choice: Rock})
	_, _, err = Apply(s2, Command{Type: CmdReceiveRemote, Choice: Rock})
	if !errors.Is(err, ErrRemoteAlreadySubmitted) {
		t.Fatalf("want ErrRemoteAlreadySubmitted, got %v", err)
	}
}

func TestApply_InvalidChoice(t *testing.T) {
	_, _, err := Apply(mustState(t, 1), Command{Type: CmdSubmitLocal, Choice: "Lizard"})
	if !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("want ErrInvalidChoice, got %v", err)
	}
}

func TestApply_RoundsNeverExceedTotal(t *testing.T) {
	const total = 4
	s := mustState(t, total)
	last := s.CurrentRound

	for i := 0; i < total; i++ {
		var err error
		_, s, err = Apply(s, Command{Type: CmdSubmitLocal, Choice: Paper})
		if err != nil {
			t.Fatalf("round %d local: %v", i+1, err)
		}
		_, s, err = Apply(s, Command{Type: CmdReceiveRemote, Choice: Rock})
		if err != nil {
			t.Fatalf("round %d remote: %v", i+1, err)
		}
		if s.CurrentRound < last {
			t.Fatalf("round went backwards: %d -> %d", last, s.CurrentRound)
		}
		if s.CurrentRound > total {
			t.Fatalf("round %d exceeds total %d", s.CurrentRound, total)
		}
		last = s.CurrentRound
	}

	if s.Phase != PhaseComplete || s.CurrentRound != total {
		t.Fatalf("want complete at round %d, got %+v", total, s)
	}

	_, _, err := Apply(s, Command{Type: CmdSubmitLocal, Choice: Rock})
	if !errors.Is(err, ErrSessionComplete) {
		t.Fatalf("want ErrSessionComplete, got %v", err)
	}
}

func TestApply_SingleRoundCompletesDirectly(t *testing.T) {
	s := mustState(t, 1)
	_, s, _ = Apply(s, Command{Type: CmdSubmitLocal, Choice: Rock})
	events, s, err := Apply(s, Command{Type: CmdReceiveRemote, Choice: Scissors})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ContainsEvent(events, EvtRoundAdvanced) {
		t.Fatalf("final round must not advance")
	}
	if !ContainsEvent(events, EvtSessionComplete) {
		t.Fatalf("expected EvtSessionComplete, got %+v", events)
	}
	if s.CurrentRound != 1 {
		t.Fatalf("want round 1, got %d", s.CurrentRound)
	}
}

func TestApply_DropoutForfeiture(t *testing.T) {
	cases := []struct {
		name       string
		actor      Actor
		wantDelta  Tally
		wantWinner bool
	}{
		{name: "peer dropped credits wins", actor: ActorPeerDropped, wantDelta: Tally{Wins: 3}, wantWinner: true},
		{name: "self quit records losses", actor: ActorSelfQuit, wantDelta: Tally{Losses: 3}, wantWinner: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := mustState(t, 5)
			s.CurrentRound = 3

			events, after, err := Apply(s, Command{Type: CmdDropout, Actor: tc.actor})
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("want exactly one dropout event, got %+v", events)
			}
			evt := events[0]
			if evt.ForfeitedRounds != 3 {
				t.Fatalf("forfeited: got %d, want 3", evt.ForfeitedRounds)
			}
			if evt.Delta != tc.wantDelta || evt.CreditedAsWinner != tc.wantWinner {
				t.Fatalf("unexpected dropout event %+v", evt)
			}
			if after.Phase != PhaseForfeited {
				t.Fatalf("want forfeited phase, got %s", after.Phase)
			}

			_, _, err = Apply(after, Command{Type: CmdDropout, Actor: tc.actor})
			if !errors.Is(err, ErrSessionComplete) {
				t.Fatalf("second dropout must be rejected, got %v", err)
			}
		})
	}
}

func TestApply_DropoutAfterCompletionRejected(t *testing.T) {
	s := mustState(t, 1)
	s.Phase = PhaseComplete

	_, _, err := Apply(s, Command{Type: CmdDropout, Actor: ActorPeerDropped})
	if !errors.Is(err, ErrSessionComplete) {
		t.Fatalf("want ErrSessionComplete, got %v", err)
	}
}

func TestNewState_RejectsZeroRounds(t *testing.T) {
	if _, err := NewState(0); !errors.Is(err, ErrInvalidRounds) {
		t.Fatalf("want ErrInvalidRounds, got %v", err)
	}
}
