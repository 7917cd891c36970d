package engine

import "fmt"

func NewState(totalRounds int) (State, error) {
	if totalRounds < 1 {
		return State{}, fmt.Errorf("%w: got %d", ErrInvalidRounds, totalRounds)
	}
	return State{
		Phase:        PhaseWaiting,
		CurrentRound: 1,
		TotalRounds:  totalRounds,
	}, nil
}

func ParseChoice(s string) (Choice, error) {
	c := Choice(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
	return c, nil
}

func (c Choice) Valid() bool {
	return c.index() >= 0
}

func (c Choice) index() int {
	switch c {
	case Rock:
		return 0
	case Paper:
		return 1
	case Scissors:
		return 2
	default:
		return -1
	}
}

func (o Outcome) Tally() Tally {
	switch o {
	case Win:
		return Tally{Wins: 1}
	case Lose:
		return Tally{Losses: 1}
	default:
		return Tally{Ties: 1}
	}
}

// RemainingRounds counts the current round as unplayed.
func (s State) RemainingRounds() int {
	return s.TotalRounds - (s.CurrentRound - 1)
}

func (s State) InProgress() bool {
	return s.Phase == PhaseWaiting
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func (t Tally) Add(other Tally) Tally {
	return Tally{
		Wins:   t.Wins + other.Wins,
		Losses: t.Losses + other.Losses,
		Ties:   t.Ties + other.Ties,
	}
}
