package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/dmitrymomot/fsmkit/pkg/logger"
)

// ShutdownHook runs after the listener has stopped accepting requests.
// Hooks run in registration order and share the shutdown deadline.
type ShutdownHook func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithShutdownHook registers a hook that runs during graceful shutdown.
func WithShutdownHook(hook ShutdownHook) Option {
	return func(s *Server) {
		if hook != nil {
			s.hooks = append(s.hooks, hook)
		}
	}
}

// Server serves a handler until its context ends, then drains in-flight
// requests and runs the shutdown hooks.
type Server struct {
	cfg   Config
	log   *slog.Logger
	hooks []ShutdownHook

	mu      sync.Mutex
	running bool
	addr    net.Addr
}

// New creates a server from cfg.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg: cfg,
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run listens on the configured address and serves handler until ctx is done.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Join(ErrStart, err)
	}
	return s.Serve(ctx, ln, handler)
}

// Serve accepts connections on ln until ctx is done. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrAlreadyRunning
	}
	s.running = true
	s.addr = ln.Addr()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
		ErrorLog:     slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		s.log.InfoContext(ctx, "HTTP server started", slog.String("addr", ln.Addr().String()))
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Join(ErrStart, err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.shutdown(srv)
}

// Addr returns the address of the active listener, or nil when the server is not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	return s.addr
}

func (s *Server) shutdown(srv *http.Server) error {
	ctx := context.Background()
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	s.log.InfoContext(ctx, "HTTP server shutting down")

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
		_ = srv.Close()
	}
	for i, hook := range s.hooks {
		if err := hook(ctx); err != nil {
			s.log.ErrorContext(ctx, "shutdown hook failed", slog.Int("hook", i), logger.Error(err))
			errs = append(errs, fmt.Errorf("hook[%d]: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrShutdown}, errs...)...)
	}

	s.log.InfoContext(ctx, "HTTP server stopped")
	return nil
}
