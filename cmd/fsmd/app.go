package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/fsmkit/pkg/broadcast"
	"github.com/dmitrymomot/fsmkit/pkg/definition"
	"github.com/dmitrymomot/fsmkit/pkg/fsmhttp"
	"github.com/dmitrymomot/fsmkit/pkg/httpserver"
	"github.com/dmitrymomot/fsmkit/pkg/logger"
	"github.com/dmitrymomot/fsmkit/pkg/observer"
	"github.com/dmitrymomot/fsmkit/pkg/redis"
	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

var errMachineNotStarted = errors.New("machine is not started")

type app struct {
	log     *slog.Logger
	machine *statemachine.Machine
	stream  *broadcast.MemoryBroadcaster[statemachine.Occurrence]
	redis   *goredis.Client
	handler http.Handler
}

// newApp builds the machine from the definition file, attaches the observers
// and mounts the HTTP surface. A configured Redis must be reachable.
func newApp(ctx context.Context, s settings, log *slog.Logger) (*app, error) {
	def, err := definition.Load(s.app.Definition)
	if err != nil {
		return nil, err
	}

	a := &app{
		log: log,
		stream: broadcast.NewMemoryBroadcaster[statemachine.Occurrence](
			broadcast.WithBufferSize(s.app.StreamBuffer),
		),
	}

	observers := []statemachine.Observer{
		observer.NewLog(log, observer.WithLevel(slog.LevelDebug)),
		observer.NewBroadcast(a.stream),
	}
	checks := map[string]httpserver.Check{}

	if s.redis.Enabled() {
		client, err := redis.Connect(ctx, s.redis)
		if err != nil {
			_ = a.stream.Close()
			return nil, err
		}
		a.redis = client
		var ropts []observer.RedisOption
		if s.app.RedisChannel != "" {
			ropts = append(ropts, observer.WithChannel(s.app.RedisChannel))
		}
		observers = append(observers, observer.NewRedis(client, ropts...))
		checks["redis"] = redis.Healthcheck(client)
	}

	if s.app.WebhookURL != "" {
		wh, err := observer.NewWebhook(s.app.WebhookURL, observer.WithWebhookSecret(s.app.WebhookSecret))
		if err != nil {
			_ = a.close(ctx)
			return nil, err
		}
		observers = append(observers, wh)
	}

	m, err := def.Build(builtins(log),
		statemachine.WithConfig(s.machine),
		statemachine.WithLogger(log),
		statemachine.WithObservers(observers...),
	)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	a.machine = m
	checks["machine"] = func(context.Context) error {
		if !m.IsStarted() {
			return errMachineNotStarted
		}
		return nil
	}

	if s.app.AutoStart {
		if err := m.Start(ctx); err != nil {
			_ = a.close(ctx)
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/health/live", httpserver.Liveness())
	r.Get("/health/ready", httpserver.Readiness(log, checks))
	r.Mount(s.app.APIPrefix, fsmhttp.Router(m,
		fsmhttp.WithLogger(log),
		fsmhttp.WithStream(a.stream),
	))
	a.handler = r

	log.InfoContext(ctx, "machine ready",
		logger.MachineID(m.ID()),
		logger.State(m.CurrentState().Name()),
		slog.Bool("redis", a.redis != nil),
		slog.Bool("webhook", s.app.WebhookURL != ""),
	)
	return a, nil
}

// close stops the machine, drains its observers and releases the sinks.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.machine != nil {
		if a.machine.IsStarted() {
			errs = append(errs, a.machine.Stop(ctx))
		}
		errs = append(errs, a.machine.Close(ctx))
	}
	errs = append(errs, a.stream.Close())
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
