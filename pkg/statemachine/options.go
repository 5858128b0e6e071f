package statemachine

import (
	"fmt"
	"log/slog"
	"time"
)

// Option configures a state machine during construction.
type Option func(*settings) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption func(*transitionConfig)

// TransitionDef defines a transition between states.
type TransitionDef struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

type transitionConfig struct {
	guards  []Guard
	actions []Action
}

type settings struct {
	id            string
	states        []State
	transitions   []TransitionDef
	notifications bool
	logger        *slog.Logger
	publisherOpts []PublisherOption
	observers     []Observer
}

func defaultSettings() *settings {
	return &settings{
		notifications: true,
		logger:        slog.Default(),
	}
}

// WithID sets the machine identifier carried by every occurrence.
// A random id is generated when none is given.
func WithID(id string) Option {
	return func(s *settings) error {
		s.id = id
		return nil
	}
}

// WithStates declares the complete set of states. Once used, transitions may
// only reference declared states; the initial state is always declared.
func WithStates(states ...State) Option {
	return func(s *settings) error {
		for i, st := range states {
			if st == nil {
				return fmt.Errorf("state[%d]: %w", i, ErrInvalidState)
			}
		}
		s.states = append(s.states, states...)
		return nil
	}
}

// WithTransition adds a single transition to the state machine.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(s *settings) error {
		cfg := &transitionConfig{}
		for _, opt := range opts {
			opt(cfg)
		}
		s.transitions = append(s.transitions, TransitionDef{
			From:    from,
			To:      to,
			Event:   event,
			Guards:  cfg.guards,
			Actions: cfg.actions,
		})
		return nil
	}
}

// WithTransitions adds multiple transitions to the state machine at once.
func WithTransitions(transitions []TransitionDef) Option {
	return func(s *settings) error {
		s.transitions = append(s.transitions, transitions...)
		return nil
	}
}

// WithNotifications sets the initial notification switch. Notifications are enabled by default.
func WithNotifications(enabled bool) Option {
	return func(s *settings) error {
		s.notifications = enabled
		return nil
	}
}

// WithLogger sets the logger for the machine and its publisher.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// WithDelivery selects synchronous or asynchronous observer delivery.
func WithDelivery(mode DeliveryMode) Option {
	return func(s *settings) error {
		if mode != DeliverySync && mode != DeliveryAsync {
			return fmt.Errorf("%w: %d", ErrUnknownDelivery, mode)
		}
		s.publisherOpts = append(s.publisherOpts, WithPublisherDelivery(mode))
		return nil
	}
}

// WithObserverTimeout bounds how long a single observer call may take.
func WithObserverTimeout(d time.Duration) Option {
	return func(s *settings) error {
		if d < 0 {
			return fmt.Errorf("observer timeout must not be negative: %s", d)
		}
		s.publisherOpts = append(s.publisherOpts, WithPublisherTimeout(d))
		return nil
	}
}

// WithMailboxSize sets the per-observer queue length used by DeliveryAsync.
func WithMailboxSize(n int) Option {
	return func(s *settings) error {
		if n <= 0 {
			return fmt.Errorf("mailbox size must be positive: %d", n)
		}
		s.publisherOpts = append(s.publisherOpts, WithPublisherMailboxSize(n))
		return nil
	}
}

// WithErrorHandler registers a callback for observer errors, panics and timeouts.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *settings) error {
		s.publisherOpts = append(s.publisherOpts, WithPublisherErrorHandler(h))
		return nil
	}
}

// WithObservers subscribes observers when the machine is built.
func WithObservers(observers ...Observer) Option {
	return func(s *settings) error {
		for _, o := range observers {
			if o != nil {
				s.observers = append(s.observers, o)
			}
		}
		return nil
	}
}

// WithConfig applies the fields of an environment-driven Config that are set.
func WithConfig(cfg Config) Option {
	return func(s *settings) error {
		if cfg.Delivery != "" {
			mode, err := ParseDeliveryMode(cfg.Delivery)
			if err != nil {
				return err
			}
			s.publisherOpts = append(s.publisherOpts, WithPublisherDelivery(mode))
		}
		if cfg.NotificationsEnabled != nil {
			s.notifications = *cfg.NotificationsEnabled
		}
		if cfg.ObserverTimeout != nil {
			if err := WithObserverTimeout(*cfg.ObserverTimeout)(s); err != nil {
				return err
			}
		}
		if cfg.MailboxSize != 0 {
			if err := WithMailboxSize(cfg.MailboxSize)(s); err != nil {
				return err
			}
		}
		if cfg.MachineID != "" {
			s.id = cfg.MachineID
		}
		return nil
	}
}

// WithGuard adds a single guard to a transition.
func WithGuard(guard Guard) TransitionOption {
	return func(cfg *transitionConfig) {
		if guard != nil {
			cfg.guards = append(cfg.guards, guard)
		}
	}
}

// WithGuards adds multiple guards to a transition.
func WithGuards(guards ...Guard) TransitionOption {
	return func(cfg *transitionConfig) {
		for _, guard := range guards {
			if guard != nil {
				cfg.guards = append(cfg.guards, guard)
			}
		}
	}
}

// WithAction adds a single action to a transition.
func WithAction(action Action) TransitionOption {
	return func(cfg *transitionConfig) {
		if action != nil {
			cfg.actions = append(cfg.actions, action)
		}
	}
}

// WithActions adds multiple actions to a transition.
func WithActions(actions ...Action) TransitionOption {
	return func(cfg *transitionConfig) {
		for _, action := range actions {
			if action != nil {
				cfg.actions = append(cfg.actions, action)
			}
		}
	}
}
