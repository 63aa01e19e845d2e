package documents

import (
	"errors"
	"fmt"
)

// State models the document lifecycle.
type State string

const (
	// StateInitiated is a quote/draft with no ledger or kardex effect.
	StateInitiated State = "INITIATED"
	// StateToDeliver is a credit sale awaiting dispatch confirmation.
	StateToDeliver State = "TO_DELIVER"
	// StateFinalized is the successful terminal state.
	StateFinalized State = "FINALIZED"
	// StateCanceled is the reversed terminal state.
	StateCanceled State = "CANCELED"
)

// Event drives a state transition.
type Event string

const (
	EventFinalize Event = "FINALIZE"
	EventDefer    Event = "DEFER"
	EventDeliver  Event = "DELIVER"
	EventCancel   Event = "CANCEL"
)

// ErrIllegalTransition aborts the surrounding unit of work.
var ErrIllegalTransition = errors.New("illegal document state transition")

// ErrParentNotCorrectable rejects a note whose parent cannot receive
// corrections yet.
var ErrParentNotCorrectable = errors.New("parent document cannot be corrected")

// transitions is the closed transition table. Anything absent is illegal;
// Canceled has no outgoing edges.
var transitions = map[State]map[Event]State{
	StateInitiated: {
		EventFinalize: StateFinalized,
		EventDefer:    StateToDeliver,
	},
	StateToDeliver: {
		EventDeliver: StateFinalized,
		EventCancel:  StateCanceled,
	},
	StateFinalized: {
		EventCancel: StateCanceled,
	},
}

// Transition resolves the next state or fails with ErrIllegalTransition.
func Transition(from State, ev Event) (State, error) {
	if next, ok := transitions[from][ev]; ok {
		return next, nil
	}
	return "", fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
}

// CanCancel reports whether a document in the given state may be reversed.
func CanCancel(s State) bool {
	_, ok := transitions[s][EventCancel]
	return ok
}

// IsTerminal reports whether no further lifecycle event applies.
func IsTerminal(s State) bool {
	return len(transitions[s]) == 0
}

// NoteInitialState returns the entry state for a correcting note given its
// parent's state. Notes are themselves immutable corrections and enter
// Finalized directly; a parent still awaiting dispatch rejects corrections.
func NoteInitialState(parent State) (State, error) {
	switch parent {
	case StateFinalized:
		return StateFinalized, nil
	case StateToDeliver:
		return "", fmt.Errorf("%w: parent is %s", ErrParentNotCorrectable, parent)
	default:
		return "", fmt.Errorf("%w: parent is %s", ErrParentNotCorrectable, parent)
	}
}
