package handler

import (
	"net/http"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// StatusSource supplies the operational snapshot.
type StatusSource interface {
	Snapshot() domain.ScannerStatus
}

// StatusHandler serves the scanner's operational status.
type StatusHandler struct {
	status        StatusSource
	registryState func() string
}

// NewStatusHandler creates a StatusHandler around the given source.
func NewStatusHandler(status StatusSource) *StatusHandler {
	return &StatusHandler{status: status}
}

// WithRegistryState attaches a registry lifecycle-state callback included in
// the response when set.
func (h *StatusHandler) WithRegistryState(fn func() string) *StatusHandler {
	h.registryState = fn
	return h
}

// GetStatus responds with the current mode, uptime, and scan counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	s := h.status.Snapshot()

	resp := map[string]any{
		"mode":            s.Mode,
		"uptime_seconds":  s.UptimeSeconds,
		"active_pairs":    s.ActivePairs,
		"scans_run":       s.ScansRun,
		"last_scan_found": s.LastScanFound,
		"ref_price":       s.RefPrice,
	}
	if !s.LastScanAt.IsZero() {
		resp["last_scan_at"] = s.LastScanAt.UTC().Format(time.RFC3339)
	}
	if h.registryState != nil {
		resp["registry_state"] = h.registryState()
	}
	writeJSON(w, http.StatusOK, resp)
}
