package resolve

import (
	"errors"
	"testing"
)

func TestTransitionLegalPath(t *testing.T) {
	path := []State{StateEvidenceGathering, StateOracleQuery, StateAdjudicated, StateOverridden}
	state := StateDetected
	for _, next := range path {
		moved, err := Transition(state, next)
		if err != nil {
			t.Fatalf("%s -> %s: %v", state, next, err)
		}
		state = moved
	}
}

func TestTransitionRetryLoop(t *testing.T) {
	if _, err := Transition(StateOracleQuery, StateEvidenceGathering); err != nil {
		t.Fatalf("oracle-query must be able to fall back for a widened retry: %v", err)
	}
}

func TestTransitionIllegalMoves(t *testing.T) {
	illegal := [][2]State{
		{StateDetected, StateOracleQuery},
		{StateDetected, StateAdjudicated},
		{StateEvidenceGathering, StateAdjudicated},
		{StateAdjudicated, StateEvidenceGathering},
		{StateEscalated, StateOracleQuery},
		{StateOverridden, StateDetected},
	}
	for _, pair := range illegal {
		got, err := Transition(pair[0], pair[1])
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", pair[0], pair[1], err)
		}
		if got != pair[0] {
			t.Fatalf("failed transition must not move the state, got %s", got)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := map[State]bool{
		StateDetected:          false,
		StateEvidenceGathering: false,
		StateOracleQuery:       false,
		StateAdjudicated:       true,
		StateEscalated:         true,
		StateOverridden:        true,
	}
	for state, want := range terminal {
		if state.Terminal() != want {
			t.Fatalf("%s.Terminal() = %v, want %v", state, state.Terminal(), want)
		}
	}
}
