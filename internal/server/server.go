// Package server exposes the masking engine as an HTTP sidecar.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/logmask/internal/alerts"
	"github.com/raaihank/logmask/internal/config"
	"github.com/raaihank/logmask/internal/logger"
	"github.com/raaihank/logmask/internal/masking"
	"github.com/raaihank/logmask/internal/stats"
	"github.com/raaihank/logmask/internal/web"
	"github.com/raaihank/logmask/internal/websocket"
)

const version = "0.1.0"

// HitRecorder accumulates per-rule match counts
type HitRecorder interface {
	RecordFindings(ctx context.Context, findings []masking.Finding) error
}

// CounterSource reports accumulated counters
type CounterSource interface {
	Snapshot(ctx context.Context) (*stats.Snapshot, error)
}

// Deps are the components the server routes to. Masker is required; the
// rest are optional and their endpoints degrade when absent.
type Deps struct {
	Masker   *masking.Masker
	Hub      *websocket.Hub
	Hits     HitRecorder
	Counters CounterSource
	Notifier *alerts.Notifier
}

// Server represents the masking sidecar HTTP server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	deps    Deps
	limiter *RateLimiter
	router  *mux.Router
	server  *http.Server
	started time.Time
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if deps.Masker == nil {
		return nil, fmt.Errorf("server requires a masker")
	}

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		deps:    deps,
		router:  mux.NewRouter(),
		started: time.Now(),
	}

	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.deps.Hub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.deps.Hub.HandleWebSocket).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", web.Dashboard(s.config.WebSocket.Path)).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/mask", s.handleMask).Methods(http.MethodPost)
	api.HandleFunc("/mask/batch", s.handleMaskBatch).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
	api.Handle("/rules/reload", s.adminMiddleware(http.HandlerFunc(s.handleReload))).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// Handler returns the routed handler, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// RateLimiter returns the per-client limiter, or nil when disabled
func (s *Server) RateLimiter() *RateLimiter {
	return s.limiter
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting logmask server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("masking_enabled", s.config.Masking.Enabled),
		zap.String("fail_mode", s.config.Masking.FailMode),
		zap.Int("rules", s.deps.Masker.Snapshot().Len()),
	)

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping logmask server")
	return s.server.Shutdown(ctx)
}
