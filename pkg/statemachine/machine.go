package statemachine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fsmkit/pkg/logger"
)

// Machine is a flat finite state machine with a built-in notification publisher.
//
// Start, Stop and SendEvent are serialized by a single lock that is held for
// the whole transition, including synchronous observer notification.
// CurrentState and IsStarted do not take the lock, so observers may call them
// while being notified.
type Machine struct {
	id        string
	registry  *stateRegistry
	table     *transitionTable
	publisher *Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	started atomic.Bool
	seq     uint64 // guarded by mu
}

var _ StateMachine = (*Machine)(nil)

// New builds a machine from the initial state and options.
// Invalid definitions, such as nil endpoints, undeclared states or two
// transitions for the same (from, event) pair, abort construction.
func New(initialState State, opts ...Option) (*Machine, error) {
	if initialState == nil {
		return nil, fmt.Errorf("initial state cannot be nil: %w", ErrInvalidState)
	}

	s := defaultSettings()
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	registry := newStateRegistry(initialState)
	if len(s.states) > 0 {
		if err := registry.declare(s.states...); err != nil {
			return nil, err
		}
	}

	table := newTransitionTable()
	for i, t := range s.transitions {
		if err := addTransition(registry, table, t); err != nil {
			return nil, fmt.Errorf("failed to add transition[%d] %s->%s on %s: %w",
				i, nameOf(t.From), nameOf(t.To), nameOf(t.Event), err)
		}
	}

	id := s.id
	if id == "" {
		id = uuid.NewString()
	}

	log := s.logger.With(logger.MachineID(id))
	publisher := NewPublisher(append([]PublisherOption{WithPublisherLogger(log)}, s.publisherOpts...)...)
	publisher.SetEnabled(s.notifications)

	m := &Machine{
		id:        id,
		registry:  registry,
		table:     table,
		publisher: publisher,
		logger:    log.With(logger.Component("fsm.machine")),
	}

	for _, o := range s.observers {
		m.Subscribe(o)
	}

	return m, nil
}

// MustNew is like New but panics on an invalid definition.
func MustNew(initialState State, opts ...Option) *Machine {
	m, err := New(initialState, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

func addTransition(registry *stateRegistry, table *transitionTable, t TransitionDef) error {
	if t.From == nil || t.To == nil || t.Event == nil {
		return ErrInvalidTransition
	}
	if err := registry.admit(t.From); err != nil {
		return err
	}
	if err := registry.admit(t.To); err != nil {
		return err
	}
	return table.register(Transition{
		From:    t.From,
		To:      t.To,
		Event:   t.Event,
		Guards:  t.Guards,
		Actions: t.Actions,
	})
}

// ID returns the machine identifier.
func (m *Machine) ID() string {
	return m.id
}

// Start moves the machine to its initial state and publishes MachineStarted.
// A machine that was stopped starts over from the initial state.
func (m *Machine) Start(ctx context.Context) error {
	ctx = orBackground(ctx)
	if m.dispatching(ctx) {
		return ErrReentrantSend
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started.Load() {
		return ErrAlreadyStarted
	}
	if err := m.registry.setCurrent(m.registry.initialState()); err != nil {
		return err
	}
	m.started.Store(true)

	state := m.registry.currentState()
	m.logger.LogAttrs(ctx, slog.LevelDebug, "state machine started", logger.State(state.Name()))
	m.publish(ctx, MachineStarted, state, nil, nil)
	return nil
}

// Stop publishes MachineStopped and marks the machine stopped.
// Stopping a machine that is not running does nothing.
func (m *Machine) Stop(ctx context.Context) error {
	ctx = orBackground(ctx)
	if m.dispatching(ctx) {
		return ErrReentrantSend
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started.Load() {
		return nil
	}

	state := m.registry.currentState()
	m.publish(ctx, MachineStopped, state, nil, nil)
	m.started.Store(false)
	m.logger.LogAttrs(ctx, slog.LevelDebug, "state machine stopped", logger.State(state.Name()))
	return nil
}

// IsStarted reports whether the machine accepts events.
func (m *Machine) IsStarted() bool {
	return m.started.Load()
}

// CurrentState returns the current state. Before the first Start it is the initial state.
func (m *Machine) CurrentState() State {
	return m.registry.currentState()
}

// InitialState returns the state the machine enters on Start.
func (m *Machine) InitialState() State {
	return m.registry.initialState()
}

// States returns the known states in declaration order.
func (m *Machine) States() []State {
	return m.registry.states()
}

// Transitions returns the transition table in registration order.
func (m *Machine) Transitions() []Transition {
	return m.table.all()
}

// SendEvent runs the transition matching the current state and event.
//
// When a transition applies, observers see TransitionStarted, StateExited,
// StateEntered and TransitionEnded in that order, with actions running between
// StateExited and the state change. Every negative outcome is reported through
// the returned Result and leaves the current state unchanged.
func (m *Machine) SendEvent(ctx context.Context, event Event, data any) Result {
	if event == nil {
		return rejected(ReasonInvalidEvent, m.CurrentState(), nil, nil, nil)
	}
	ctx = orBackground(ctx)
	if m.dispatching(ctx) {
		return rejected(ReasonReentrant, m.CurrentState(), event, nil, nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	res := m.handle(ctx, event, data)
	if res.Rejected() {
		m.logger.LogAttrs(ctx, slog.LevelDebug, "event rejected",
			logger.State(nameOf(res.From)),
			logger.Event(event.Name()),
			logger.Reason(res.Reason.String()),
			logger.Error(res.Cause()),
		)
	}
	return res
}

// Fire is SendEvent for callers that prefer an error.
func (m *Machine) Fire(ctx context.Context, event Event, data any) error {
	return m.SendEvent(ctx, event, data).Err()
}

// CanFire reports whether event would apply a transition right now.
// It evaluates guards but runs no actions and publishes nothing.
func (m *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil || !m.started.Load() {
		return false
	}
	t, ok := m.table.lookup(m.registry.currentState(), event)
	if !ok {
		return false
	}
	pass, err := t.evaluateGuards(orBackground(ctx), event, data)
	return pass && err == nil
}

// Subscribe registers an observer and returns its subscription id.
func (m *Machine) Subscribe(o Observer) SubscriptionID {
	return m.publisher.Subscribe(o)
}

// Unsubscribe removes an observer and reports whether it was subscribed.
func (m *Machine) Unsubscribe(id SubscriptionID) bool {
	return m.publisher.Unsubscribe(id)
}

// SetNotificationsEnabled switches occurrence publication on or off.
// While off, no occurrence is built and observers are not called.
func (m *Machine) SetNotificationsEnabled(enabled bool) {
	m.publisher.SetEnabled(enabled)
}

// NotificationsEnabled reports whether occurrences are published.
func (m *Machine) NotificationsEnabled() bool {
	return m.publisher.Enabled()
}

// Delivery returns how occurrences reach observers.
func (m *Machine) Delivery() DeliveryMode {
	return m.publisher.Delivery()
}

// ObserverTimeout returns the per-observer dispatch bound. Zero means unbounded.
func (m *Machine) ObserverTimeout() time.Duration {
	return m.publisher.Timeout()
}

// Stats returns the publisher delivery counters.
func (m *Machine) Stats() Stats {
	return m.publisher.Stats()
}

// Close releases the publisher. Async mailboxes are drained until ctx ends.
func (m *Machine) Close(ctx context.Context) error {
	return m.publisher.Close(ctx)
}

func (m *Machine) handle(ctx context.Context, event Event, data any) Result {
	from := m.registry.currentState()
	if !m.started.Load() {
		return rejected(ReasonNotStarted, from, event, nil, nil)
	}

	t, ok := m.table.lookup(from, event)
	if !ok {
		return rejected(ReasonNoMatchingTransition, from, event, nil, nil)
	}

	pass, err := t.evaluateGuards(ctx, event, data)
	if !pass {
		return rejected(ReasonGuardDenied, from, event, t, err)
	}

	to := t.To
	start := time.Now()
	m.publish(ctx, TransitionStarted, from, t, event)
	m.publish(ctx, StateExited, from, t, event)

	if err := t.runActions(ctx, event, data); err != nil {
		return rejected(ReasonActionFailed, from, event, t, err)
	}

	if err := m.registry.setCurrent(to); err != nil {
		return rejected(ReasonInvalidState, from, event, t, err)
	}

	m.publish(ctx, StateEntered, to, t, event)
	m.publish(ctx, TransitionEnded, to, t, event)

	m.logger.LogAttrs(ctx, slog.LevelDebug, "transition applied",
		logger.FromState(from.Name()),
		logger.ToState(to.Name()),
		logger.Event(event.Name()),
		logger.Duration(time.Since(start)),
	)
	return applied(t, event)
}

// publish builds and delivers an occurrence. Callers hold m.mu.
func (m *Machine) publish(ctx context.Context, kind OccurrenceKind, state State, t *Transition, event Event) {
	if !m.publisher.Enabled() {
		return
	}
	m.seq++
	occ := Occurrence{
		Kind:       kind,
		MachineID:  m.id,
		State:      state,
		Transition: t,
		Event:      event,
		Sequence:   m.seq,
		Timestamp:  time.Now(),
	}
	if m.publisher.Delivery() == DeliverySync {
		ctx = m.markDispatching(ctx)
	}
	m.publisher.Publish(ctx, occ)
}

type dispatchKey struct{}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// markDispatching records that ctx is being used to notify observers of m.
// The value is a chain so nested machines notifying each other are all tracked.
func (m *Machine) markDispatching(ctx context.Context) context.Context {
	ctx = orBackground(ctx)
	if m.dispatching(ctx) {
		return ctx
	}
	chain, _ := ctx.Value(dispatchKey{}).([]*Machine)
	next := make([]*Machine, len(chain), len(chain)+1)
	copy(next, chain)
	return context.WithValue(ctx, dispatchKey{}, append(next, m))
}

func (m *Machine) dispatching(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	chain, _ := ctx.Value(dispatchKey{}).([]*Machine)
	for _, other := range chain {
		if other == m {
			return true
		}
	}
	return false
}

// evaluateGuards runs guards in order and stops at the first that denies.
// A panicking guard denies the transition and the panic is returned as the cause.
func (tr *Transition) evaluateGuards(ctx context.Context, event Event, data any) (pass bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			pass = false
			err = &ErrRecoveredPanic{Value: r, Stack: debug.Stack()}
		}
	}()
	for _, guard := range tr.Guards {
		if !guard(ctx, tr.From, event, data) {
			return false, nil
		}
	}
	return true, nil
}

// runActions runs actions in order and stops at the first failure.
func (tr *Transition) runActions(ctx context.Context, event Event, data any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ErrRecoveredPanic{Value: r, Stack: debug.Stack()}
		}
	}()
	for i, action := range tr.Actions {
		if actionErr := action(ctx, tr.From, tr.To, event, data); actionErr != nil {
			return fmt.Errorf("action[%d]: %w", i, actionErr)
		}
	}
	return nil
}
