// Package server assembles the HTTP and WebSocket API: route registration,
// the middleware chain, and graceful startup/shutdown around net/http.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
	"github.com/quellen-dev/dexscan/internal/server/handler"
	"github.com/quellen-dev/dexscan/internal/server/middleware"
	"github.com/quellen-dev/dexscan/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimitPerMin int    // if zero, per-client rate limiting is disabled
}

// Handlers aggregates the HTTP handlers the server registers. Metrics is the
// optional Prometheus exposition handler; nil leaves /metrics unregistered.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Pairs         *handler.PairsHandler
	Opportunities *handler.OpportunitiesHandler
	Scans         *handler.ScansHandler
	Metrics       http.Handler
}

// Server is the headless HTTP + WebSocket API for the scanner.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limit, auth, logging, CORS) wrapped around it.
// wsHub and limiter are optional; nil skips the corresponding wiring.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	mux.HandleFunc("GET /api/pairs", handlers.Pairs.ListPairs)
	mux.HandleFunc("POST /api/pairs/refresh", handlers.Pairs.RefreshPairs)

	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListOpportunities)
	mux.HandleFunc("GET /api/opportunities/{id}", handlers.Opportunities.GetOpportunity)

	mux.HandleFunc("GET /api/scans", handlers.Scans.ListScans)
	mux.HandleFunc("GET /api/scans/{id}", handlers.Scans.GetScan)
	mux.HandleFunc("POST /api/scans/trigger", handlers.Scans.TriggerScan)

	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
