// Command fsmd serves one state machine, built from a YAML definition, over HTTP.
//
// Occurrences are logged and streamed to HTTP clients as server-sent events.
// They are also published to Redis when REDIS_URL is set and posted to a
// webhook when FSM_WEBHOOK_URL is set.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/fsmkit/pkg/httpserver"
	"github.com/dmitrymomot/fsmkit/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := loadSettings()
	if err != nil {
		logger.New().Error("failed to load configuration", logger.Error(err))
		return err
	}

	log, err := logger.FromConfig(s.log, logger.WithContextExtractors(requestIDExtractor))
	if err != nil {
		logger.New().Error("invalid logger configuration", logger.Error(err))
		return err
	}
	logger.SetAsDefault(log)

	a, err := newApp(ctx, s, log)
	if err != nil {
		log.Error("failed to initialize", logger.Error(err))
		return err
	}

	srv := httpserver.New(s.http,
		httpserver.WithLogger(log),
		httpserver.WithShutdownHook(a.close),
	)
	if err := srv.Run(ctx, a.handler); err != nil {
		if errors.Is(err, httpserver.ErrStart) {
			_ = a.close(context.Background())
		}
		log.Error("server stopped with error", logger.Error(err))
		return err
	}
	return nil
}
