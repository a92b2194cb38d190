package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// OpportunityService defines the methods the opportunities handler requires.
type OpportunityService interface {
	Recent(ctx context.Context, limit int) ([]domain.Opportunity, error)
	ByID(ctx context.Context, id string) (domain.Opportunity, error)
	ByPair(ctx context.Context, pairKey string, opts domain.ListOpts) ([]domain.Opportunity, error)
}

// OpportunitiesHandler serves the opportunity history endpoints.
type OpportunitiesHandler struct {
	opps   OpportunityService
	logger *slog.Logger
}

// NewOpportunitiesHandler creates an OpportunitiesHandler.
func NewOpportunitiesHandler(opps OpportunityService, logger *slog.Logger) *OpportunitiesHandler {
	return &OpportunitiesHandler{opps: opps, logger: logger}
}

// ListOpportunities returns recent opportunities, optionally filtered to one
// pair key with pagination and a time range.
// GET /api/opportunities?limit=50&pair=<key>&offset=0&since=2024-03-01
func (h *OpportunitiesHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	var (
		opps []domain.Opportunity
		err  error
	)
	if pairKey := r.URL.Query().Get("pair"); pairKey != "" {
		opps, err = h.opps.ByPair(r.Context(), pairKey, parseListOpts(r))
	} else {
		opps, err = h.opps.Recent(r.Context(), parseLimit(r, 50, 500))
	}
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) {
			writeError(w, http.StatusNotImplemented, "opportunity history not configured")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"opportunities": viewOpportunities(opps)})
}

// GetOpportunity returns a single opportunity by id.
// GET /api/opportunities/{id}
func (h *OpportunitiesHandler) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}

	opp, err := h.opps.ByID(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "opportunity not found")
		case errors.Is(err, domain.ErrDataUnavailable):
			writeError(w, http.StatusNotImplemented, "opportunity history not configured")
		default:
			h.logger.ErrorContext(r.Context(), "handler: get opportunity failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to get opportunity")
		}
		return
	}

	writeJSON(w, http.StatusOK, viewOpportunity(opp))
}
