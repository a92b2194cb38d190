package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// PairService defines the methods the pairs handler requires.
type PairService interface {
	Active(ctx context.Context) ([]domain.DiscoveredPair, error)
	Refresh(ctx context.Context, force bool) ([]domain.DiscoveredPair, error)
}

// PairsHandler serves the tracked-pair endpoints.
type PairsHandler struct {
	pairs  PairService
	logger *slog.Logger
}

// NewPairsHandler creates a PairsHandler with the given service and logger.
func NewPairsHandler(pairs PairService, logger *slog.Logger) *PairsHandler {
	return &PairsHandler{pairs: pairs, logger: logger}
}

// ListPairs returns the active scannable pair set in rank order.
// GET /api/pairs
func (h *PairsHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.pairs.Active(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pairs failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pairs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pairs": viewPairs(pairs)})
}

// RefreshPairs forces a discovery run and returns the refreshed set size.
// When another process holds the refresh lock the current snapshot is
// returned instead, which is indistinguishable here and fine.
// POST /api/pairs/refresh
func (h *PairsHandler) RefreshPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.pairs.Refresh(r.Context(), true)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: pair refresh failed",
			slog.String("error", err.Error()),
		)
		if errors.Is(err, domain.ErrConfiguration) {
			writeError(w, http.StatusServiceUnavailable, "discovery is not available in this deployment")
			return
		}
		writeError(w, http.StatusInternalServerError, "pair refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "refreshed",
		"pairs":  len(pairs),
	})
}
