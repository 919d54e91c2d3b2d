package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the liveness probe. It is registered outside the
// auth gate so load balancers can hit it without credentials.
type HealthHandler struct {
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// HealthCheck reports that the API process is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "oddsarb",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
