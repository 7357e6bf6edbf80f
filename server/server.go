// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/richinex/coursebot/internal/logging"
	"github.com/richinex/coursebot/orchestration"
)

// Answerer answers one query within a session.
type Answerer interface {
	Answer(ctx context.Context, sessionID, query string) (orchestration.Result, error)
}

// Catalog lists the indexed courses.
type Catalog interface {
	CourseTitles(ctx context.Context) ([]string, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front door.
type Server struct {
	answerer        Answerer
	catalog         Catalog
	checks          map[string]Pinger
	log             *logging.Logger
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithReadinessCheck adds a named dependency to /readyz.
func WithReadinessCheck(name string, p Pinger) Option {
	return func(s *Server) {
		s.checks[name] = p
	}
}

// WithShutdownTimeout bounds how long shutdown waits for in-flight requests.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// New creates a server. Routes are registered by Handler.
func New(answerer Answerer, catalog Catalog, log *logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.Nop()
	}
	s := &Server{
		answerer:        answerer,
		catalog:         catalog,
		checks:          make(map[string]Pinger),
		log:             log.Sub("server"),
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return withMiddleware(mux, s.log)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. In-flight
// requests keep running through shutdown; they are not tied to ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("server ready")

	stopped := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		s.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("shutdown incomplete")
		}
	}()

	err := s.httpServer.Serve(ln)
	close(stopped)
	<-done
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
