package statemachine

import "slices"

// transitionTable maps [fromState][event] to the single transition for that pair.
// It is written only while the machine is being built and is read-only afterwards,
// so lookups need no locking.
type transitionTable struct {
	transitions map[string]map[string]*Transition
	order       []*Transition
}

func newTransitionTable() *transitionTable {
	return &transitionTable{
		transitions: make(map[string]map[string]*Transition),
	}
}

func (t *transitionTable) register(tr Transition) error {
	if tr.From == nil || tr.To == nil || tr.Event == nil {
		return ErrInvalidTransition
	}

	fromName, eventName := tr.From.Name(), tr.Event.Name()
	byEvent, ok := t.transitions[fromName]
	if !ok {
		byEvent = make(map[string]*Transition)
		t.transitions[fromName] = byEvent
	}
	if _, exists := byEvent[eventName]; exists {
		return NewErrDuplicateTransition(fromName, eventName)
	}

	stored := &Transition{
		From:    tr.From,
		To:      tr.To,
		Event:   tr.Event,
		Guards:  compactGuards(tr.Guards),
		Actions: compactActions(tr.Actions),
	}
	byEvent[eventName] = stored
	t.order = append(t.order, stored)
	return nil
}

func (t *transitionTable) lookup(from State, event Event) (*Transition, bool) {
	byEvent, ok := t.transitions[from.Name()]
	if !ok {
		return nil, false
	}
	tr, ok := byEvent[event.Name()]
	return tr, ok
}

// all returns transitions in registration order.
func (t *transitionTable) all() []Transition {
	out := make([]Transition, 0, len(t.order))
	for _, tr := range t.order {
		out = append(out, *tr.clone())
	}
	return out
}

// clone returns a copy of tr that shares nothing mutable with the table.
func (tr *Transition) clone() *Transition {
	if tr == nil {
		return nil
	}
	c := *tr
	c.Guards = slices.Clone(tr.Guards)
	c.Actions = slices.Clone(tr.Actions)
	return &c
}

// compactGuards drops nil guards and copies the slice so callers cannot mutate a built table.
func compactGuards(guards []Guard) []Guard {
	var out []Guard
	for _, g := range guards {
		if g != nil {
			out = append(out, g)
		}
	}
	return out
}

func compactActions(actions []Action) []Action {
	var out []Action
	for _, a := range actions {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}
