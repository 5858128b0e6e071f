package main

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/fsmkit/pkg/definition"
	"github.com/dmitrymomot/fsmkit/pkg/logger"
	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

// builtins are the guard and action names a definition served by fsmd may reference.
func builtins(log *slog.Logger) *definition.Registry {
	return definition.NewRegistry().
		MustRegisterGuard("has_data", func(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
			return data != nil
		}).
		MustRegisterAction("log", func(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
			log.InfoContext(ctx, "transition",
				logger.FromState(from.Name()),
				logger.ToState(to.Name()),
				logger.Event(event.Name()),
				slog.Any("data", data),
			)
			return nil
		})
}
