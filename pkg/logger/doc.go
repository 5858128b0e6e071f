// Package logger builds slog loggers for fsmkit services and defines the
// attribute helpers used across the runtime.
//
// New takes functional options for level, format, output, static attributes and
// ContextExtractor callbacks. Extractors run on every record, so request-scoped
// values such as a request id reach log lines written deep inside a transition
// as long as the call passes the request context.
//
//	log := logger.New(
//	    logger.WithEnvironment(logger.EnvProduction, "order-fsm"),
//	    logger.WithContextValue("tenant", tenantKey{}),
//	)
//
// Services usually start from the environment instead:
//
//	cfg, err := logger.LoadConfig() // APP_ENV, APP_NAME, LOG_LEVEL, LOG_FORMAT
//	if err != nil {
//	    return err
//	}
//	log, err := logger.FromConfig(cfg)
//
// Attribute helpers (MachineID, State, FromState, ToState, Event, Occurrence,
// Reason, Sequence, SubscriptionID, Error) keep key names consistent between the
// machine, its observers and the HTTP adapter. Error and Errors return an empty
// attribute for nil errors, so callers need no nil check.
package logger
