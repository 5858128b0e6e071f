package statemachine

import (
	"context"
	"time"
)

// OccurrenceKind identifies what happened inside the machine.
type OccurrenceKind int

const (
	MachineStarted OccurrenceKind = iota + 1
	MachineStopped
	TransitionStarted
	StateExited
	StateEntered
	TransitionEnded
)

func (k OccurrenceKind) String() string {
	switch k {
	case MachineStarted:
		return "machine_started"
	case MachineStopped:
		return "machine_stopped"
	case TransitionStarted:
		return "transition_started"
	case StateExited:
		return "state_exited"
	case StateEntered:
		return "state_entered"
	case TransitionEnded:
		return "transition_ended"
	default:
		return "unknown"
	}
}

// Occurrence is a transient record of one runtime happening.
// It is built only when notifications are enabled and handed to every observer.
type Occurrence struct {
	Kind      OccurrenceKind
	MachineID string
	// State is the state that was entered or exited. For machine lifecycle
	// occurrences it is the current state at that moment.
	State State
	// Transition and Event are set for occurrences produced while a transition runs.
	Transition *Transition
	Event      Event
	// Sequence increases by one for every occurrence a machine publishes.
	Sequence  uint64
	Timestamp time.Time
}

// Observer is notified of every occurrence published by a machine with notifications enabled.
// Returned errors are reported through the publisher's side channel and never reach the engine.
type Observer interface {
	Notify(ctx context.Context, occ Occurrence) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, occ Occurrence) error

func (f ObserverFunc) Notify(ctx context.Context, occ Occurrence) error {
	return f(ctx, occ)
}
