package main

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/fsmkit/pkg/logger"
)

// requestIDExtractor attaches chi's request id so machine logs written while
// handling an HTTP event carry the id of the request that sent it.
func requestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	id := middleware.GetReqID(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return logger.RequestID(id), true
}
