package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// OpportunitySource exposes the engine's live opportunity set.
type OpportunitySource interface {
	Opportunities() []domain.Opportunity
	Settle(oppID string, realized float64)
}

// OpportunityHandler serves opportunity-related HTTP endpoints. The live set
// comes from the engine; the historical record comes from the store, which
// may be nil when the process runs without Postgres.
type OpportunityHandler struct {
	live   OpportunitySource
	store  domain.OpportunityStore
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. live may be nil to
// disable the live and settle endpoints; store may be nil to disable the
// history and lookup endpoints.
func NewOpportunityHandler(live OpportunitySource, store domain.OpportunityStore, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		live:   live,
		store:  store,
		logger: logHandler(logger, "opportunities"),
	}
}

// listOpportunitiesResponse wraps the list endpoint output.
type listOpportunitiesResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
	Total         int                  `json:"total"`
}

// ListOpportunities returns the engine's live opportunities, best edge first.
// GET /api/opportunities
func (h *OpportunityHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		writeError(w, http.StatusServiceUnavailable, "live opportunities require a running engine")
		return
	}
	opps := h.live.Opportunities()
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{
		Opportunities: opps,
		Total:         len(opps),
	})
}

// ListHistory returns stored opportunities filtered by state.
// GET /api/opportunities/history?state=closed&limit=50
func (h *OpportunityHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "opportunity history requires persistence")
		return
	}

	state := domain.OpportunityState(r.URL.Query().Get("state"))
	if state == "" {
		state = domain.OpportunityClosed
	}
	switch state {
	case domain.OpportunityDetected, domain.OpportunityActive, domain.OpportunityStale, domain.OpportunityClosed:
	default:
		writeError(w, http.StatusBadRequest, "unknown state")
		return
	}

	opps, err := h.store.ListByState(r.Context(), state, parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunity history failed",
			slog.String("state", string(state)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	writeJSON(w, http.StatusOK, listOpportunitiesResponse{
		Opportunities: opps,
		Total:         len(opps),
	})
}

// GetOpportunity returns a single stored opportunity by ID.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "opportunity lookup requires persistence")
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}

	opp, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get opportunity failed",
			slog.String("opportunity_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get opportunity")
		return
	}

	writeJSON(w, http.StatusOK, opp)
}

// settleRequest is the body of the settle endpoint.
type settleRequest struct {
	Realized float64 `json:"realized"`
}

// Settle records the realized return of a settled opportunity, releasing its
// reservation and crediting the bankroll.
// POST /api/opportunities/{id}/settle
func (h *OpportunityHandler) Settle(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		writeError(w, http.StatusServiceUnavailable, "settlement requires a running engine")
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Realized < 0 {
		writeError(w, http.StatusBadRequest, "realized return must be non-negative")
		return
	}

	h.live.Settle(id, req.Realized)
	h.logger.InfoContext(r.Context(), "opportunity settled",
		slog.String("opportunity_id", id),
		slog.Float64("realized", req.Realized),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunity_id": id,
		"realized":       req.Realized,
	})
}
