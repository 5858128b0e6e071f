package httpserver

import "errors"

var (
	// ErrStart indicates that the server failed to listen or serve.
	ErrStart = errors.New("failed to start HTTP server")
	// ErrShutdown indicates that graceful shutdown or a shutdown hook failed.
	ErrShutdown = errors.New("failed to shutdown HTTP server gracefully")
	// ErrAlreadyRunning is returned when Run or Serve is called twice.
	ErrAlreadyRunning = errors.New("HTTP server is already running")
	// ErrCheckFailed is reported by Readiness when a dependency check fails.
	ErrCheckFailed = errors.New("readiness check failed")
)
