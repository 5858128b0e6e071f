package statemachine

import (
	"time"

	"github.com/dmitrymomot/fsmkit/pkg/config"
)

// Config holds the environment-driven settings of a machine and its publisher.
// Unset fields leave the machine's own settings untouched, so a Config applied
// after other options overrides only what the environment actually sets.
type Config struct {
	MachineID            string         `env:"FSM_MACHINE_ID"`
	NotificationsEnabled *bool          `env:"FSM_NOTIFICATIONS_ENABLED"`
	Delivery             string         `env:"FSM_DELIVERY"`
	ObserverTimeout      *time.Duration `env:"FSM_OBSERVER_TIMEOUT"`
	MailboxSize          int            `env:"FSM_MAILBOX_SIZE"`
}

// LoadConfig reads Config from the environment and the optional .env file.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
