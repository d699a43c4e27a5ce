package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Server serves the operational endpoints. Shutdown first flips it into
// draining, which the readiness endpoint reports, and closes the listener
// once Config.DrainDelay has passed.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	listener net.Listener
	draining atomic.Bool

	mu          sync.Mutex
	srv         *http.Server
	once        sync.Once
	shutdownErr error
}

// New returns a Server for cfg.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{cfg: cfg.withDefaults(), logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draining reports whether Shutdown has started. Pass it to
// RouterOptions.Draining.
func (s *Server) Draining() bool {
	return s.draining.Load()
}

// Run serves handler until ctx is cancelled, then shuts down gracefully.
// A Server runs once.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	switch {
	case s.Draining():
		s.mu.Unlock()
		return ErrClosed
	case s.srv != nil:
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.srv = srv
	s.mu.Unlock()

	ln := s.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", s.cfg.Addr); err != nil {
			return errors.Join(ErrListen, err)
		}
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "http server listening",
		slog.String("addr", ln.Addr().String()),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		err := s.Shutdown(context.WithoutCancel(ctx))
		if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) {
			err = errors.Join(err, ErrServe, serveErr)
		}
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Join(ErrServe, err)
	}
}

// Shutdown marks the server as draining, waits Config.DrainDelay and then
// stops it within Config.ShutdownTimeout. Repeated calls return the first
// result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.draining.Store(true)
		srv := s.srv
		s.mu.Unlock()
		if srv == nil {
			return
		}

		start := time.Now()
		s.logger.LogAttrs(ctx, slog.LevelInfo, "http server draining",
			slog.Duration("drain_delay", s.cfg.DrainDelay),
		)
		if d := s.cfg.DrainDelay; d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}

		ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.shutdownErr = errors.Join(ErrShutdown, err)
		}
		s.logger.LogAttrs(ctx, slog.LevelInfo, "http server stopped",
			logger.Duration(time.Since(start)),
		)
	})
	return s.shutdownErr
}
