package service

import (
	"sync"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// StatusTracker aggregates the operational counters served by the status
// endpoint. ObserveScan is called by the pipeline after every pass; Snapshot
// assembles the current picture on demand.
type StatusTracker struct {
	mode        string
	startedAt   time.Time
	now         func() time.Time
	activePairs func() int
	refPrice    func() float64

	mu            sync.Mutex
	lastScanAt    time.Time
	lastScanFound int
	scansRun      int64
}

// NewStatusTracker creates a tracker for the given run mode. The activePairs
// and refPrice callbacks may be nil when the corresponding subsystem is not
// wired.
func NewStatusTracker(mode string, activePairs func() int, refPrice func() float64) *StatusTracker {
	t := &StatusTracker{
		mode:        mode,
		now:         time.Now,
		activePairs: activePairs,
		refPrice:    refPrice,
	}
	t.startedAt = t.now()
	return t
}

// WithClock replaces the time source, for tests.
func (t *StatusTracker) WithClock(now func() time.Time) *StatusTracker {
	t.now = now
	t.startedAt = now()
	return t
}

// ObserveScan folds a completed report into the counters.
func (t *StatusTracker) ObserveScan(report domain.ScanReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastScanAt = report.FinishedAt
	t.lastScanFound = len(report.Opportunities)
	t.scansRun++
}

// Snapshot returns the current operational status.
func (t *StatusTracker) Snapshot() domain.ScannerStatus {
	t.mu.Lock()
	lastAt, lastFound, runs := t.lastScanAt, t.lastScanFound, t.scansRun
	t.mu.Unlock()

	status := domain.ScannerStatus{
		Mode:          t.mode,
		UptimeSeconds: int64(t.now().Sub(t.startedAt).Seconds()),
		LastScanAt:    lastAt,
		LastScanFound: lastFound,
		ScansRun:      runs,
	}
	if t.activePairs != nil {
		status.ActivePairs = t.activePairs()
	}
	if t.refPrice != nil {
		status.RefPrice = t.refPrice()
	}
	return status
}
