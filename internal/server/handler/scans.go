package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// ScanService defines the methods the scans handler requires.
type ScanService interface {
	Recent(ctx context.Context, limit int) ([]domain.ScanReport, error)
	ByID(ctx context.Context, id string) (domain.ScanReport, error)
}

// ScansHandler serves scan run history and the manual scan trigger.
type ScansHandler struct {
	scans   ScanService
	trigger chan<- struct{}
	logger  *slog.Logger
}

// NewScansHandler creates a ScansHandler.
func NewScansHandler(scans ScanService, logger *slog.Logger) *ScansHandler {
	return &ScansHandler{scans: scans, logger: logger}
}

// WithTriggerChannel wires the channel used to request an immediate scan.
func (h *ScansHandler) WithTriggerChannel(ch chan<- struct{}) *ScansHandler {
	h.trigger = ch
	return h
}

// ListScans returns recent scan runs without their opportunity lists.
// GET /api/scans?limit=20
func (h *ScansHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	reports, err := h.scans.Recent(r.Context(), parseLimit(r, 20, 200))
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) {
			writeError(w, http.StatusNotImplemented, "scan history not configured")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list scans failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}

	views := make([]scanView, 0, len(reports))
	for _, report := range reports {
		views = append(views, viewScan(report, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": views})
}

// GetScan returns one scan run with its opportunities attached.
// GET /api/scans/{id}
func (h *ScansHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing scan id")
		return
	}

	report, err := h.scans.ByID(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "scan not found")
		case errors.Is(err, domain.ErrDataUnavailable):
			writeError(w, http.StatusNotImplemented, "scan history not configured")
		default:
			h.logger.ErrorContext(r.Context(), "handler: get scan failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to get scan")
		}
		return
	}

	writeJSON(w, http.StatusOK, viewScan(report, true))
}

// TriggerScan requests an immediate scan cycle from the orchestrator. The
// request is accepted if the trigger channel has room; a scan already pending
// reports as already_pending rather than queueing another.
// POST /api/scans/trigger
func (h *ScansHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scan trigger not available in this mode")
		return
	}

	select {
	case h.trigger <- struct{}{}:
		h.logger.InfoContext(r.Context(), "handler: scan triggered via api")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already_pending"})
	}
}
