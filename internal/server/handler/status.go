package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports the process mode and uptime so dashboards have a
// REST fallback when the WebSocket status envelope has not arrived yet.
type StatusHandler struct {
	mode      string
	dryRun    bool
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, dryRun bool, startedAt time.Time) *StatusHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &StatusHandler{
		mode:      mode,
		dryRun:    dryRun,
		startedAt: startedAt,
	}
}

// GetStatus returns the operating mode and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"dry_run":        h.dryRun,
		"uptime_seconds": uptime,
	})
}
