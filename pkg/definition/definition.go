package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

// Definition is the declarative form of a machine.
//
//	id: order
//	initial: pending
//	notifications: true
//	delivery: sync
//	observer_timeout: 250ms
//	states: [pending, paid, shipped, cancelled]
//	transitions:
//	  - {from: pending, event: pay, to: paid, guards: [has_funds], actions: [charge]}
//	  - {from: paid, event: ship, to: shipped}
//	  - {from: pending, event: cancel, to: cancelled}
type Definition struct {
	ID              string       `yaml:"id,omitempty" json:"id,omitempty"`
	Initial         string       `yaml:"initial" json:"initial"`
	Notifications   *bool        `yaml:"notifications,omitempty" json:"notifications,omitempty"`
	Delivery        string       `yaml:"delivery,omitempty" json:"delivery,omitempty"`
	ObserverTimeout string       `yaml:"observer_timeout,omitempty" json:"observer_timeout,omitempty"`
	States          []string     `yaml:"states,omitempty" json:"states,omitempty"`
	Transitions     []Transition `yaml:"transitions" json:"transitions"`
}

// Transition is one row of the transition table. Guards and actions refer to
// names bound in a Registry.
type Transition struct {
	From    string   `yaml:"from" json:"from"`
	Event   string   `yaml:"event" json:"event"`
	To      string   `yaml:"to" json:"to"`
	Guards  []string `yaml:"guards,omitempty" json:"guards,omitempty"`
	Actions []string `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// Parse decodes and validates a YAML definition. Unknown fields are rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Definition
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Join(ErrFailedToParseYAML, errors.New("empty document"))
		}
		return nil, errors.Join(ErrFailedToParseYAML, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads and parses a YAML definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToReadFile, err)
	}
	return Parse(data)
}

// Marshal encodes the definition as YAML.
func (d *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Validate checks the definition for structural problems and reports all of them.
func (d *Definition) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if d.Initial == "" {
		add("initial state is required")
	}
	if _, err := statemachine.ParseDeliveryMode(d.Delivery); err != nil {
		errs = append(errs, err)
	}
	if d.ObserverTimeout != "" {
		if t, err := time.ParseDuration(d.ObserverTimeout); err != nil || t < 0 {
			add("observer_timeout %q is not a valid non-negative duration", d.ObserverTimeout)
		}
	}

	declared := make(map[string]struct{}, len(d.States))
	for i, s := range d.States {
		if s == "" {
			add("states[%d] is empty", i)
			continue
		}
		if _, dup := declared[s]; dup {
			add("state %q declared twice", s)
		}
		declared[s] = struct{}{}
	}
	strict := len(d.States) > 0
	if strict && d.Initial != "" {
		if _, ok := declared[d.Initial]; !ok {
			add("initial state %q is not declared", d.Initial)
		}
	}

	seen := make(map[[2]string]int, len(d.Transitions))
	for i, t := range d.Transitions {
		if t.From == "" || t.Event == "" || t.To == "" {
			add("transitions[%d]: from, event and to are required", i)
			continue
		}
		if strict {
			for _, s := range []string{t.From, t.To} {
				if _, ok := declared[s]; !ok {
					add("transitions[%d]: state %q is not declared", i, s)
				}
			}
		}
		key := [2]string{t.From, t.Event}
		if prev, dup := seen[key]; dup {
			add("transitions[%d]: %s on %s already defined by transitions[%d]", i, t.From, t.Event, prev)
			continue
		}
		seen[key] = i
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidDefinition}, errs...)...)
	}
	return nil
}

// Options converts the definition into machine options, resolving guard and
// action names through reg.
func (d *Definition) Options(reg *Registry) ([]statemachine.Option, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var opts []statemachine.Option
	if d.ID != "" {
		opts = append(opts, statemachine.WithID(d.ID))
	}
	if len(d.States) > 0 {
		states := make([]statemachine.State, len(d.States))
		for i, s := range d.States {
			states[i] = statemachine.StringState(s)
		}
		opts = append(opts, statemachine.WithStates(states...))
	}
	if d.Notifications != nil {
		opts = append(opts, statemachine.WithNotifications(*d.Notifications))
	}
	if d.Delivery != "" {
		mode, _ := statemachine.ParseDeliveryMode(d.Delivery)
		opts = append(opts, statemachine.WithDelivery(mode))
	}
	if d.ObserverTimeout != "" {
		timeout, _ := time.ParseDuration(d.ObserverTimeout)
		opts = append(opts, statemachine.WithObserverTimeout(timeout))
	}

	for i, t := range d.Transitions {
		var topts []statemachine.TransitionOption
		for _, name := range t.Guards {
			g, ok := reg.guard(name)
			if !ok {
				return nil, fmt.Errorf("transitions[%d]: %w: %q", i, ErrUnknownGuard, name)
			}
			topts = append(topts, statemachine.WithGuard(g))
		}
		for _, name := range t.Actions {
			a, ok := reg.action(name)
			if !ok {
				return nil, fmt.Errorf("transitions[%d]: %w: %q", i, ErrUnknownAction, name)
			}
			topts = append(topts, statemachine.WithAction(a))
		}
		opts = append(opts, statemachine.WithTransition(
			statemachine.StringState(t.From),
			statemachine.StringState(t.To),
			statemachine.StringEvent(t.Event),
			topts...,
		))
	}
	return opts, nil
}

// Build creates a machine from the definition. Extra options are applied after
// the definition's own and take precedence.
func (d *Definition) Build(reg *Registry, extra ...statemachine.Option) (*statemachine.Machine, error) {
	opts, err := d.Options(reg)
	if err != nil {
		return nil, err
	}
	return statemachine.New(statemachine.StringState(d.Initial), append(opts, extra...)...)
}

// Describe produces a definition of an existing machine. Guard and action
// names cannot be recovered and are left empty.
func Describe(m *statemachine.Machine) *Definition {
	notifications := m.NotificationsEnabled()
	d := &Definition{
		ID:            m.ID(),
		Initial:       m.InitialState().Name(),
		Notifications: &notifications,
		Delivery:      m.Delivery().String(),
	}
	if timeout := m.ObserverTimeout(); timeout > 0 {
		d.ObserverTimeout = timeout.String()
	}
	for _, s := range m.States() {
		d.States = append(d.States, s.Name())
	}
	for _, t := range m.Transitions() {
		d.Transitions = append(d.Transitions, Transition{
			From:  t.From.Name(),
			Event: t.Event.Name(),
			To:    t.To.Name(),
		})
	}
	return d
}
