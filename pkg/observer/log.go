package observer

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/fsmkit/pkg/logger"
	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

// Log writes each occurrence as a structured log record.
type Log struct {
	logger *slog.Logger
	level  slog.Level
}

// LogOption configures a Log observer.
type LogOption func(*Log)

// WithLevel sets the record level. Defaults to slog.LevelInfo.
func WithLevel(level slog.Level) LogOption {
	return func(l *Log) { l.level = level }
}

// NewLog creates a logging observer. A nil logger falls back to slog.Default().
func NewLog(l *slog.Logger, opts ...LogOption) *Log {
	if l == nil {
		l = slog.Default()
	}
	o := &Log{logger: l, level: slog.LevelInfo}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Notify writes one record per occurrence at the configured level.
func (l *Log) Notify(ctx context.Context, occ statemachine.Occurrence) error {
	if !l.logger.Enabled(ctx, l.level) {
		return nil
	}

	attrs := []slog.Attr{
		logger.MachineID(occ.MachineID),
		logger.Occurrence(occ.Kind.String()),
		logger.Sequence(occ.Sequence),
	}
	if occ.State != nil {
		attrs = append(attrs, logger.State(occ.State.Name()))
	}
	if occ.Event != nil {
		attrs = append(attrs, logger.Event(occ.Event.Name()))
	}
	if occ.Transition != nil {
		attrs = append(attrs,
			logger.FromState(occ.Transition.From.Name()),
			logger.ToState(occ.Transition.To.Name()),
		)
	}

	l.logger.LogAttrs(ctx, l.level, "state machine occurrence", attrs...)
	return nil
}
