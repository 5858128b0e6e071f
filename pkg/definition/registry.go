package definition

import (
	"fmt"
	"sync"

	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

// Registry maps guard and action names used in definitions to functions.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	guards  map[string]statemachine.Guard
	actions map[string]statemachine.Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		guards:  make(map[string]statemachine.Guard),
		actions: make(map[string]statemachine.Action),
	}
}

// RegisterGuard binds name to guard. Names must be unique among guards.
func (r *Registry) RegisterGuard(name string, guard statemachine.Guard) error {
	if name == "" || guard == nil {
		return fmt.Errorf("%w: guard name and function are required", ErrInvalidDefinition)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.guards[name]; ok {
		return fmt.Errorf("%w: guard %q", ErrDuplicateName, name)
	}
	r.guards[name] = guard
	return nil
}

// RegisterAction binds name to action. Names must be unique among actions.
func (r *Registry) RegisterAction(name string, action statemachine.Action) error {
	if name == "" || action == nil {
		return fmt.Errorf("%w: action name and function are required", ErrInvalidDefinition)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[name]; ok {
		return fmt.Errorf("%w: action %q", ErrDuplicateName, name)
	}
	r.actions[name] = action
	return nil
}

// MustRegisterGuard is like RegisterGuard but panics on error.
func (r *Registry) MustRegisterGuard(name string, guard statemachine.Guard) *Registry {
	if err := r.RegisterGuard(name, guard); err != nil {
		panic(err)
	}
	return r
}

// MustRegisterAction is like RegisterAction but panics on error.
func (r *Registry) MustRegisterAction(name string, action statemachine.Action) *Registry {
	if err := r.RegisterAction(name, action); err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) guard(name string) (statemachine.Guard, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.guards[name]
	return g, ok
}

func (r *Registry) action(name string) (statemachine.Action, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}
