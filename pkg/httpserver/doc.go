// Package httpserver runs an http.Handler with graceful shutdown and
// provides liveness and readiness handlers.
//
// Serve binds the server lifetime to a context: when the context ends the
// server stops accepting connections, drains in-flight requests within
// Config.ShutdownTimeout and then runs the registered ShutdownHook functions in
// order. The fsmd daemon uses a hook to stop the machine and drain its
// asynchronous observers before exiting.
//
//	srv := httpserver.New(cfg,
//	    httpserver.WithLogger(log),
//	    httpserver.WithShutdownHook(machine.Close),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//	    log.Error("server failed", logger.Error(err))
//	}
//
// Readiness takes named checks and reports the failing ones as JSON:
//
//	r.Get("/health/ready", httpserver.Readiness(log, map[string]httpserver.Check{
//	    "redis": redis.Healthcheck(client),
//	}))
package httpserver
