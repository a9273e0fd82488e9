package resolve

import (
	"errors"
	"fmt"
)

// State is the explicit lifecycle position of one inconsistency under
// resolution. The only legal path is Detected → EvidenceGathering →
// OracleQuery → a terminal state, with OracleQuery allowed to fall back to
// EvidenceGathering for a widened retry.
type State string

const (
	StateDetected          State = "detected"
	StateEvidenceGathering State = "evidence-gathering"
	StateOracleQuery       State = "oracle-query"
	StateAdjudicated       State = "adjudicated"
	StateEscalated         State = "escalated"
	StateOverridden        State = "overridden"
)

var ErrInvalidTransition = errors.New("invalid resolution state transition")

var transitions = map[State][]State{
	StateDetected:          {StateEvidenceGathering},
	StateEvidenceGathering: {StateOracleQuery},
	StateOracleQuery:       {StateAdjudicated, StateEscalated, StateEvidenceGathering},
	StateAdjudicated:       {StateOverridden},
	StateEscalated:         {StateOverridden},
	StateOverridden:        {},
}

// Transition validates a state move; terminal states only admit a manual
// override.
func Transition(from, to State) (State, error) {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return to, nil
		}
	}
	return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Terminal reports whether the state machine has finished with this
// inconsistency.
func (s State) Terminal() bool {
	return s == StateAdjudicated || s == StateEscalated || s == StateOverridden
}
