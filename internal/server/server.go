package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/oddsarb/internal/domain"
	"github.com/alanyoungcy/oddsarb/internal/server/handler"
	"github.com/alanyoungcy/oddsarb/internal/server/middleware"
	"github.com/alanyoungcy/oddsarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimitPerSec throttles API requests per client IP; 0 disables.
	RateLimitPerSec int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Nil handlers leave their routes unregistered.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Markets       *handler.MarketHandler
	Opportunities *handler.OpportunityHandler
	Bankroll      *handler.BankrollHandler
}

// Server is the headless HTTP + WebSocket API for the arbitrage engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil to disable API rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}

	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	// Market endpoints.
	if handlers.Markets != nil {
		mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
		mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	}

	// Opportunity endpoints.
	if handlers.Opportunities != nil {
		mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListOpportunities)
		mux.HandleFunc("GET /api/opportunities/history", handlers.Opportunities.ListHistory)
		mux.HandleFunc("GET /api/opportunities/{id}", handlers.Opportunities.GetOpportunity)
		mux.HandleFunc("POST /api/opportunities/{id}/settle", handlers.Opportunities.Settle)
	}

	// Bankroll endpoint.
	if handlers.Bankroll != nil {
		mux.HandleFunc("GET /api/bankroll", handlers.Bankroll.GetBankroll)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty); the health probe
	// stays open for load balancers.
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)

	// Apply per-client rate limiting when a limiter is wired.
	if limiter != nil && cfg.RateLimitPerSec > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerSec, time.Second)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
