package statemachine

// Reason explains why an event did not apply a transition.
type Reason int

const (
	// ReasonNone is the reason of an applied result.
	ReasonNone Reason = iota
	ReasonNotStarted
	ReasonNoMatchingTransition
	ReasonGuardDenied
	ReasonActionFailed
	ReasonInvalidEvent
	ReasonReentrant
	// ReasonInvalidState means the target state is not known to the machine.
	ReasonInvalidState
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNotStarted:
		return "not_started"
	case ReasonNoMatchingTransition:
		return "no_matching_transition"
	case ReasonGuardDenied:
		return "guard_denied"
	case ReasonActionFailed:
		return "action_failed"
	case ReasonInvalidEvent:
		return "invalid_event"
	case ReasonReentrant:
		return "reentrant"
	case ReasonInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

// Result is the outcome of sending an event to a machine.
// Negative outcomes are ordinary values: callers branch on Applied or Reason
// instead of treating them as faults.
type Result struct {
	// Transition is a copy of the matched transition. Nil when no transition matched.
	Transition *Transition
	// From is the state the machine was in when the event was handled.
	From State
	// Reason is ReasonNone for an applied transition.
	Reason Reason

	event Event
	cause error
}

// Applied reports whether the transition was executed and the state advanced.
func (r Result) Applied() bool {
	return r.Reason == ReasonNone && r.Transition != nil
}

// Rejected reports whether the event left the machine unchanged.
func (r Result) Rejected() bool {
	return !r.Applied()
}

// Event returns the event that produced this result.
func (r Result) Event() Event {
	return r.event
}

// Cause returns the error raised by a failed action, if any.
func (r Result) Cause() error {
	return r.cause
}

// Err converts a rejected result into the matching error value. It returns nil
// for applied results.
func (r Result) Err() error {
	stateName, eventName := nameOf(r.From), nameOf(r.event)
	switch r.Reason {
	case ReasonNone:
		return nil
	case ReasonNotStarted:
		return ErrNotStarted
	case ReasonNoMatchingTransition:
		return NewErrNoTransitionAvailable(stateName, eventName)
	case ReasonGuardDenied:
		return NewErrTransitionRejected(stateName, eventName)
	case ReasonActionFailed:
		return NewErrActionFailed(stateName, eventName, r.cause)
	case ReasonInvalidEvent:
		return ErrInvalidEvent
	case ReasonReentrant:
		return ErrReentrantSend
	case ReasonInvalidState:
		if r.cause != nil {
			return r.cause
		}
		return ErrInvalidState
	default:
		return r.cause
	}
}

func applied(t *Transition, event Event) Result {
	return Result{Transition: t.clone(), From: t.From, event: event}
}

func rejected(reason Reason, from State, event Event, t *Transition, cause error) Result {
	return Result{Transition: t.clone(), From: from, Reason: reason, event: event, cause: cause}
}
