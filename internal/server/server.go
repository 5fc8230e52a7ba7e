package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/pixelctl/pixelctl/internal/errors"
	"github.com/pixelctl/pixelctl/internal/observability"
	"github.com/pixelctl/pixelctl/internal/server/handlers"
	servermw "github.com/pixelctl/pixelctl/internal/server/middleware"
)

// Options configures the status server.
type Options struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string

	// Limits, Placements and Snapshots back the /v1 routes. Nil sources
	// answer 503.
	Limits     handlers.LimitsProvider
	Placements handlers.PlacementSource
	Snapshots  handlers.SnapshotSource

	// Checks are reported by /health.
	Checks map[string]handlers.HealthChecker
}

// Server is the local status server that runs alongside long draws.
type Server struct {
	router *chi.Mux
	server *http.Server
	opts   Options
	health *handlers.HealthManager

	startedAt time.Time
	listener  net.Listener
}

// New creates the server and registers its routes.
func New(opts Options) *Server {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	// RequestID first so metrics, logs and envelopes share the ID.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	health := handlers.NewHealthManager(opts.Version)
	for name, checker := range opts.Checks {
		health.RegisterChecker(name, checker)
	}

	s := &Server{
		router:    r,
		opts:      opts,
		health:    health,
		startedAt: time.Now(),
	}

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes()

	return s
}

// Start binds the listener and serves in the background. It returns once
// the port is bound so Addr is valid.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.opts.Host, fmt.Sprintf("%d", s.opts.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status server listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting status server",
			zap.String("addr", listener.Addr().String()))
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if observability.ServerLogger != nil {
				observability.ServerLogger.Error("Status server stopped", zap.Error(err))
			}
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down status server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}
