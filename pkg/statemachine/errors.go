package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid transition: from, to, or event cannot be nil")
	ErrInvalidEvent      = errors.New("invalid event: event cannot be nil")
	ErrInvalidState      = errors.New("invalid state: state is not declared in this machine")
	ErrNotStarted        = errors.New("state machine is not started")
	ErrAlreadyStarted    = errors.New("state machine is already started")
	ErrReentrantSend     = errors.New("event sent from an observer during synchronous notification")
	ErrPublisherClosed   = errors.New("notification publisher is closed")
	ErrObserverTimeout   = errors.New("observer did not return within the dispatch timeout")
	ErrUnknownDelivery   = errors.New("unknown delivery mode")
)

// ErrNoTransitionAvailable indicates no valid transition exists for the given state/event combination.
type ErrNoTransitionAvailable struct {
	StateName string
	EventName string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("no transition available from state '%s' for event '%s'", e.StateName, e.EventName)
}

func NewErrNoTransitionAvailable(stateName, eventName string) *ErrNoTransitionAvailable {
	return &ErrNoTransitionAvailable{
		StateName: stateName,
		EventName: eventName,
	}
}

// ErrTransitionRejected indicates the matched transition was vetoed by a guard.
type ErrTransitionRejected struct {
	StateName string
	EventName string
}

func (e *ErrTransitionRejected) Error() string {
	return fmt.Sprintf("transition from state '%s' for event '%s' was rejected by guards", e.StateName, e.EventName)
}

func NewErrTransitionRejected(stateName, eventName string) *ErrTransitionRejected {
	return &ErrTransitionRejected{
		StateName: stateName,
		EventName: eventName,
	}
}

// ErrActionFailed reports a transition action that returned an error or panicked.
// The machine stays in StateName when this error is produced.
type ErrActionFailed struct {
	StateName string
	EventName string
	Err       error
}

func (e *ErrActionFailed) Error() string {
	return fmt.Sprintf("action failed on transition from state '%s' for event '%s': %v", e.StateName, e.EventName, e.Err)
}

func (e *ErrActionFailed) Unwrap() error {
	return e.Err
}

func NewErrActionFailed(stateName, eventName string, err error) *ErrActionFailed {
	return &ErrActionFailed{
		StateName: stateName,
		EventName: eventName,
		Err:       err,
	}
}

// ErrDuplicateTransition is returned at build time when a (from, event) pair is registered twice.
type ErrDuplicateTransition struct {
	StateName string
	EventName string
}

func (e *ErrDuplicateTransition) Error() string {
	return fmt.Sprintf("duplicate transition from state '%s' for event '%s'", e.StateName, e.EventName)
}

// Is makes a duplicate transition match ErrInvalidTransition.
func (e *ErrDuplicateTransition) Is(target error) bool {
	return target == ErrInvalidTransition
}

func NewErrDuplicateTransition(stateName, eventName string) *ErrDuplicateTransition {
	return &ErrDuplicateTransition{
		StateName: stateName,
		EventName: eventName,
	}
}

// ErrRecoveredPanic wraps a value recovered from a panicking observer or action.
type ErrRecoveredPanic struct {
	Value any
	Stack []byte
}

func (e *ErrRecoveredPanic) Error() string {
	return fmt.Sprintf("recovered panic: %v", e.Value)
}

func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}

func IsTransitionRejectedError(err error) bool {
	var e *ErrTransitionRejected
	return errors.As(err, &e)
}

func IsActionFailedError(err error) bool {
	var e *ErrActionFailed
	return errors.As(err, &e)
}

func IsDuplicateTransitionError(err error) bool {
	var e *ErrDuplicateTransition
	return errors.As(err, &e)
}

func IsRecoveredPanic(err error) bool {
	var e *ErrRecoveredPanic
	return errors.As(err, &e)
}
