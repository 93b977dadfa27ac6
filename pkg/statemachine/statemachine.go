// Package statemachine provides an immutable transition table for finite
// state machines whose current state lives outside the process (typically in
// a database row).
//
// Unlike an in-memory machine, the table never holds "the" current state: the
// caller reads the persisted state, asks the table where an event leads, and
// then persists the result with a conditional write. The table is safe for
// concurrent use once built.
//
//	table := statemachine.MustNew(
//		statemachine.Transition[Status, Trigger]{From: Pending, Event: Activate, To: Active},
//		statemachine.Transition[Status, Trigger]{From: Active, Event: Cancel, To: Canceled},
//	).WithTerminal(Canceled)
//
//	next, err := table.Next(current, Cancel)
package statemachine

import "fmt"

// Transition declares that Event moves a record from From to To.
type Transition[S, E comparable] struct {
	From  S
	Event E
	To    S
}

// Table is a read-only lookup of allowed transitions.
type Table[S, E comparable] struct {
	transitions map[S]map[E]S
	terminal    map[S]struct{}
}

// New builds a table from transitions.
// Declaring the same from/event pair twice with different targets is an error.
func New[S, E comparable](transitions ...Transition[S, E]) (*Table[S, E], error) {
	t := &Table[S, E]{
		transitions: make(map[S]map[E]S),
		terminal:    make(map[S]struct{}),
	}

	for _, tr := range transitions {
		events, ok := t.transitions[tr.From]
		if !ok {
			events = make(map[E]S)
			t.transitions[tr.From] = events
		}
		if to, exists := events[tr.Event]; exists && to != tr.To {
			return nil, fmt.Errorf("%w: %v on %v leads to both %v and %v", ErrAmbiguousTransition, tr.From, tr.Event, to, tr.To)
		}
		events[tr.Event] = tr.To
	}

	return t, nil
}

// MustNew is like New but panics on an invalid definition.
func MustNew[S, E comparable](transitions ...Transition[S, E]) *Table[S, E] {
	t, err := New(transitions...)
	if err != nil {
		panic(err)
	}
	return t
}

// WithTerminal marks states that accept no events, even ones declared as
// transitions. It returns a new table and leaves the receiver untouched.
func (t *Table[S, E]) WithTerminal(states ...S) *Table[S, E] {
	out := &Table[S, E]{
		transitions: t.transitions,
		terminal:    make(map[S]struct{}, len(t.terminal)+len(states)),
	}
	for s := range t.terminal {
		out.terminal[s] = struct{}{}
	}
	for _, s := range states {
		out.terminal[s] = struct{}{}
	}
	return out
}

// Next returns the state that event leads to from the given state.
func (t *Table[S, E]) Next(from S, event E) (S, error) {
	var zero S

	if t.IsTerminal(from) {
		return zero, &NoTransitionError{State: fmt.Sprint(from), Event: fmt.Sprint(event), Terminal: true}
	}

	to, ok := t.transitions[from][event]
	if !ok {
		return zero, &NoTransitionError{State: fmt.Sprint(from), Event: fmt.Sprint(event)}
	}

	return to, nil
}

// Can reports whether event is accepted in the given state.
func (t *Table[S, E]) Can(from S, event E) bool {
	_, err := t.Next(from, event)
	return err == nil
}

// IsTerminal reports whether s was marked terminal.
func (t *Table[S, E]) IsTerminal(s S) bool {
	_, ok := t.terminal[s]
	return ok
}
