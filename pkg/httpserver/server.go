// Package httpserver runs an http.Handler until its context is canceled and
// then drains in-flight requests.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/dmitrymomot/subscription-api/pkg/logger"
)

// Hook runs around the server lifecycle. Stop hooks run after the listener
// is drained, in registration order, and are the place to close stores.
type Hook func(ctx context.Context) error

// Server is a thin lifecycle wrapper around http.Server.
type Server struct {
	cfg        Config
	log        *slog.Logger
	startHooks []Hook
	stopHooks  []Hook

	mu  sync.Mutex
	srv *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithStartHook registers a hook that runs before the listener opens.
// A failing start hook aborts Run.
func WithStartHook(h Hook) Option {
	return func(s *Server) { s.startHooks = append(s.startHooks, h) }
}

// WithStopHook registers a hook that runs after shutdown.
func WithStopHook(h Hook) Option {
	return func(s *Server) { s.stopHooks = append(s.stopHooks, h) }
}

// New builds a server from cfg.
func New(cfg Config, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	s := &Server{cfg: cfg, log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves handler until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Join(ErrStart, err)
	}
	return s.Serve(ctx, ln, handler)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.Join(ErrStart, ErrAlreadyRunning)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.srv = srv
	s.mu.Unlock()

	for _, h := range s.startHooks {
		if err := h(ctx); err != nil {
			_ = ln.Close()
			return errors.Join(ErrStart, err)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.InfoContext(ctx, "http server started", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Join(ErrStart, err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.shutdown(context.WithoutCancel(ctx), srv, errCh)
}

func (s *Server) shutdown(ctx context.Context, srv *http.Server, errCh <-chan error) error {
	s.log.InfoContext(ctx, "http server shutting down")

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}
	for _, h := range s.stopHooks {
		if err := h(ctx); err != nil {
			s.log.ErrorContext(ctx, "stop hook failed", logger.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(ErrShutdown, errors.Join(errs...))
	}
	s.log.InfoContext(ctx, "http server stopped")
	return nil
}
