package logger

import (
	"log/slog"

	"github.com/dmitrymomot/fsmkit/pkg/config"
)

// Config is the environment-driven logger setup. Level and Format override
// the preset of Env when set.
type Config struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"APP_NAME" envDefault:"fsmd"`
	Level   string `env:"LOG_LEVEL"`
	Format  string `env:"LOG_FORMAT"`
}

// LoadConfig reads Config through pkg/config.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromConfig builds a logger from cfg. Extra options are applied last.
func FromConfig(cfg Config, extra ...Option) (*slog.Logger, error) {
	opts := []Option{WithEnvironment(cfg.Env, cfg.Service)}
	if cfg.Level != "" {
		level, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLevel(level))
	}
	if cfg.Format != "" {
		format, err := ParseFormat(cfg.Format)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithFormat(format))
	}
	return New(append(opts, extra...)...), nil
}
