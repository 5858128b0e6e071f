// Package statemachine implements a flat finite state machine runtime with an
// observer notification publisher.
//
// States and events are anything with a Name; StringState and StringEvent cover
// the common case. A machine is built once from an initial state and a set of
// transitions and never changes shape afterwards. Each (from, event) pair maps
// to at most one transition, so dispatch is deterministic.
//
// # Usage
//
//	const (
//	    Idle    = statemachine.StringState("idle")
//	    Running = statemachine.StringState("running")
//	    Go      = statemachine.StringEvent("go")
//	)
//
//	m := statemachine.MustNew(Idle,
//	    statemachine.WithID("worker-1"),
//	    statemachine.WithTransition(Idle, Running, Go),
//	)
//	_ = m.Start(ctx)
//
//	res := m.SendEvent(ctx, Go, nil)
//	if res.Rejected() {
//	    log.Printf("rejected: %s", res.Reason)
//	}
//
// # Transitions
//
// SendEvent returns a Result instead of an error. An event is rejected when the
// machine is not started, no transition matches, a guard denies it, or an
// action fails. Rejections never change the current state. Fire wraps
// SendEvent and converts a rejection into one of the typed errors
// (ErrNoTransitionAvailable, ErrTransitionRejected, ErrActionFailed).
//
// # Notifications
//
// Observers subscribe with Subscribe and receive an Occurrence for every
// lifecycle change. An applied transition always produces, in order:
//
//	TransitionStarted -> StateExited -> (actions) -> StateEntered -> TransitionEnded
//
// Start publishes MachineStarted and Stop publishes MachineStopped. When
// notifications are disabled nothing is built or delivered.
//
// Observer errors, panics and timeouts are contained by the Publisher: they are
// logged, counted in Stats and passed to the optional ErrorHandler, and never
// affect the transition or other observers. DeliverySync calls observers before
// SendEvent returns; DeliveryAsync queues occurrences on a bounded mailbox per
// observer and drops them when the mailbox is full.
//
// # Concurrency
//
// Start, Stop and SendEvent are serialized. CurrentState and IsStarted are
// lock-free and may be called from observers. An observer that sends an event
// to the machine notifying it synchronously gets a ReasonReentrant result
// instead of a deadlock.
//
// # Configuration
//
// LoadConfig reads FSM_* environment variables through pkg/config and
// WithConfig applies them.
package statemachine
