package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/oddsarb/internal/domain"
)

// BankrollSource exposes the engine's bankroll state.
type BankrollSource interface {
	BankrollSnapshot() domain.BankrollSnapshot
}

// BankrollHandler serves the bankroll endpoint.
type BankrollHandler struct {
	bankroll BankrollSource
	logger   *slog.Logger
}

// NewBankrollHandler creates a BankrollHandler over the given source.
func NewBankrollHandler(bankroll BankrollSource, logger *slog.Logger) *BankrollHandler {
	return &BankrollHandler{
		bankroll: bankroll,
		logger:   logHandler(logger, "bankroll"),
	}
}

// GetBankroll returns the current capital position.
// GET /api/bankroll
func (h *BankrollHandler) GetBankroll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bankroll.BankrollSnapshot())
}
