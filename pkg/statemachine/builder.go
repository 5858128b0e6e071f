package statemachine

// Builder provides a fluent API for building state machines.
//
//	m, err := statemachine.NewBuilder(Idle).
//	    From(Idle).When(Go).To(Running).WithGuard(ready).Add().
//	    From(Running).When(Halt).To(Idle).Add().
//	    Build()
//
// Definition errors are collected and reported by Build.
type Builder struct {
	initial      State
	opts         []Option
	transitions  []TransitionDef
	currentFrom  State
	currentEvent Event
	currentTo    State
	guards       []Guard
	actions      []Action
}

// NewBuilder creates a new state machine builder.
func NewBuilder(initialState State, opts ...Option) *Builder {
	return &Builder{
		initial: initialState,
		opts:    opts,
	}
}

// From starts a new transition from state.
func (b *Builder) From(state State) *Builder {
	b.reset()
	b.currentFrom = state
	return b
}

// When sets the event that triggers the current transition.
func (b *Builder) When(event Event) *Builder {
	b.currentEvent = event
	return b
}

// To sets the target state of the current transition.
func (b *Builder) To(state State) *Builder {
	b.currentTo = state
	return b
}

// WithGuard adds a guard to the current transition.
func (b *Builder) WithGuard(guard Guard) *Builder {
	if guard != nil {
		b.guards = append(b.guards, guard)
	}
	return b
}

// WithAction adds an action to the current transition.
func (b *Builder) WithAction(action Action) *Builder {
	if action != nil {
		b.actions = append(b.actions, action)
	}
	return b
}

// Add finalizes the current transition.
func (b *Builder) Add() *Builder {
	b.transitions = append(b.transitions, TransitionDef{
		From:    b.currentFrom,
		To:      b.currentTo,
		Event:   b.currentEvent,
		Guards:  b.guards,
		Actions: b.actions,
	})
	b.reset()
	return b
}

// Options appends machine options applied by Build.
func (b *Builder) Options(opts ...Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build constructs the machine from everything added so far.
func (b *Builder) Build() (*Machine, error) {
	opts := make([]Option, 0, len(b.opts)+1)
	opts = append(opts, b.opts...)
	opts = append(opts, WithTransitions(b.transitions))
	return New(b.initial, opts...)
}

// MustBuild is like Build but panics on an invalid definition.
func (b *Builder) MustBuild() *Machine {
	opts := make([]Option, 0, len(b.opts)+1)
	opts = append(opts, b.opts...)
	opts = append(opts, WithTransitions(b.transitions))
	return MustNew(b.initial, opts...)
}

func (b *Builder) reset() {
	b.currentFrom = nil
	b.currentEvent = nil
	b.currentTo = nil
	b.guards = nil
	b.actions = nil
}
