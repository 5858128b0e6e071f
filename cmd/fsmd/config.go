package main

import (
	"github.com/dmitrymomot/fsmkit/pkg/config"
	"github.com/dmitrymomot/fsmkit/pkg/httpserver"
	"github.com/dmitrymomot/fsmkit/pkg/logger"
	"github.com/dmitrymomot/fsmkit/pkg/redis"
	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

type appConfig struct {
	Definition    string `env:"FSM_DEFINITION,required"`
	AutoStart     bool   `env:"FSM_AUTOSTART" envDefault:"true"`
	RedisChannel  string `env:"FSM_REDIS_CHANNEL"`
	WebhookURL    string `env:"FSM_WEBHOOK_URL"`
	WebhookSecret string `env:"FSM_WEBHOOK_SECRET"`
	StreamBuffer  int    `env:"FSM_STREAM_BUFFER" envDefault:"64"`
	APIPrefix     string `env:"FSM_API_PREFIX" envDefault:"/fsm"`
}

type settings struct {
	app     appConfig
	log     logger.Config
	machine statemachine.Config
	http    httpserver.Config
	redis   redis.Config
}

func loadSettings() (settings, error) {
	var s settings
	if err := config.Load(&s.app); err != nil {
		return settings{}, err
	}
	if err := config.Load(&s.log); err != nil {
		return settings{}, err
	}
	if err := config.Load(&s.http); err != nil {
		return settings{}, err
	}
	if err := config.Load(&s.redis); err != nil {
		return settings{}, err
	}
	machine, err := statemachine.LoadConfig()
	if err != nil {
		return settings{}, err
	}
	s.machine = machine
	return s, nil
}
