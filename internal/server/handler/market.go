package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// MarketDirectory defines the methods the market handler requires from the
// engine. It is declared locally so the handler package does not depend on
// the concrete engine implementation.
type MarketDirectory interface {
	MarketIDs() []string
	Market(id string) (domain.Market, error)
	View(id string) (domain.MarketView, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketDirectory
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler over the given directory.
func NewMarketHandler(markets MarketDirectory, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logHandler(logger, "markets"),
	}
}

// marketSummary is one row of the list endpoint output.
type marketSummary struct {
	Market domain.Market     `json:"market"`
	View   domain.MarketView `json:"view"`
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketSummary `json:"markets"`
	Total   int             `json:"total"`
}

// ListMarkets returns every tracked market with its current best-price view.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	ids := h.markets.MarketIDs()
	out := make([]marketSummary, 0, len(ids))
	for _, id := range ids {
		m, err := h.markets.Market(id)
		if err != nil {
			// Closed and evicted between MarketIDs and Market.
			continue
		}
		view, err := h.markets.View(id)
		if err != nil {
			continue
		}
		out = append(out, marketSummary{Market: m, View: view})
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: out,
		Total:   len(out),
	})
}

// GetMarket returns a single market and its view by ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.markets.Market(id)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownMarket) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	view, err := h.markets.View(id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: market view failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build market view")
		return
	}

	writeJSON(w, http.StatusOK, marketSummary{Market: m, View: view})
}
