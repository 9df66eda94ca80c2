package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the operator HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger
	grace      time.Duration

	// Services
	engine      driving.SyncEngine
	authService driving.AuthService // nil leaves the API unauthenticated

	// Infrastructure
	store Pinger // document database health check
	lock  Pinger // lock backend health check (optional)
}

// Config holds server configuration
type Config struct {
	Host            string
	Port            int
	Version         string
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ShutdownTimeout: 30 * time.Second,
	}
}

// Deps carries what the handlers serve.
type Deps struct {
	Engine      driving.SyncEngine
	AuthService driving.AuthService
	Store       Pinger
	Lock        Pinger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Deps) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		logger:      logger,
		grace:       cfg.ShutdownTimeout,
		engine:      deps.Engine,
		authService: deps.AuthService,
		store:       deps.Store,
		lock:        deps.Lock,
	}

	s.setupRoutes()

	handler := chain(s.router, Recover(logger), AccessLog(logger))

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A manual sync holds the request open for the whole cycle.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) setupRoutes() {
	// Health endpoints (public)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	protect := func(h http.HandlerFunc) http.Handler { return h }
	if s.authService != nil {
		requireOperator := RequireOperator(s.authService)
		protect = func(h http.HandlerFunc) http.Handler { return requireOperator(h) }
	}

	// Sync endpoints
	s.router.Handle("POST /api/v1/sync", protect(s.handleSync))
	s.router.Handle("GET /api/v1/state", protect(s.handleState))
	s.router.Handle("POST /api/v1/autosync/stop", protect(s.handleStopAutoSync))

	// Service administration
	s.router.Handle("POST /api/v1/services/{name}/purge", protect(s.handlePurge))
	s.router.Handle("POST /api/v1/services/{name}/reset", protect(s.handleResetWatermark))

	// Local stores
	s.router.Handle("GET /api/v1/stores", protect(s.handleListStores))
	s.router.Handle("GET /api/v1/stores/{name}", protect(s.handleDumpStore))
	s.router.Handle("DELETE /api/v1/stores", protect(s.handlePurgeLocal))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.grace)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
