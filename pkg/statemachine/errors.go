package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransition        = errors.New("no transition available")
	ErrAmbiguousTransition = errors.New("ambiguous transition")
)

// NoTransitionError reports an event that is not accepted in a state.
type NoTransitionError struct {
	State    string
	Event    string
	Terminal bool
}

func (e *NoTransitionError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("no transition available from terminal state '%s' for event '%s'", e.State, e.Event)
	}
	return fmt.Sprintf("no transition available from state '%s' for event '%s'", e.State, e.Event)
}

// Is makes errors.Is(err, ErrNoTransition) match.
func (e *NoTransitionError) Is(target error) bool {
	return target == ErrNoTransition
}
