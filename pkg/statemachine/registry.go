package statemachine

import (
	"fmt"
	"sync/atomic"
)

type stateRef struct {
	state State
}

// stateRegistry holds the declared states, the initial state and the current one.
// The current state is read without locking so observers may inspect the machine
// while a transition holds the machine lock; only the engine writes it.
type stateRegistry struct {
	declared map[string]State
	order    []State
	initial  State
	strict   bool // states were declared explicitly; transitions may not add new ones
	current  atomic.Pointer[stateRef]
}

func newStateRegistry(initial State) *stateRegistry {
	r := &stateRegistry{
		declared: make(map[string]State),
		initial:  initial,
	}
	r.add(initial)
	r.current.Store(&stateRef{state: initial})
	return r
}

func (r *stateRegistry) add(s State) {
	if _, ok := r.declared[s.Name()]; ok {
		return
	}
	r.declared[s.Name()] = s
	r.order = append(r.order, s)
}

// declare registers states explicitly and switches the registry to strict mode.
func (r *stateRegistry) declare(states ...State) error {
	for _, s := range states {
		if s == nil {
			return fmt.Errorf("%w: nil state", ErrInvalidState)
		}
		r.add(s)
	}
	r.strict = true
	return nil
}

// admit makes a transition endpoint known to the registry. In strict mode the
// state must already be declared.
func (r *stateRegistry) admit(s State) error {
	if r.contains(s) {
		return nil
	}
	if r.strict {
		return fmt.Errorf("%w: %q", ErrInvalidState, s.Name())
	}
	r.add(s)
	return nil
}

func (r *stateRegistry) contains(s State) bool {
	if s == nil {
		return false
	}
	_, ok := r.declared[s.Name()]
	return ok
}

func (r *stateRegistry) initialState() State {
	return r.initial
}

func (r *stateRegistry) currentState() State {
	return r.current.Load().state
}

func (r *stateRegistry) setCurrent(s State) error {
	if !r.contains(s) {
		return fmt.Errorf("%w: %q", ErrInvalidState, nameOf(s))
	}
	r.current.Store(&stateRef{state: r.declared[s.Name()]})
	return nil
}

// states returns declared states in declaration order.
func (r *stateRegistry) states() []State {
	out := make([]State, len(r.order))
	copy(out, r.order)
	return out
}
