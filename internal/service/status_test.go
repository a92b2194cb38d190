package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTracker_Snapshot(t *testing.T) {
	current := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := NewStatusTracker("scan",
		func() int { return 7 },
		func() float64 { return 2500 },
	).WithClock(func() time.Time { return current })

	report := sampleReport("scan-1", sampleOpportunity("opp-1"), sampleOpportunity("opp-2"))
	tracker.ObserveScan(report)
	tracker.ObserveScan(sampleReport("scan-2"))

	current = current.Add(6 * time.Minute)
	status := tracker.Snapshot()

	assert.Equal(t, "scan", status.Mode)
	assert.Equal(t, int64(360), status.UptimeSeconds)
	assert.Equal(t, 7, status.ActivePairs)
	assert.Equal(t, int64(2), status.ScansRun)
	assert.Equal(t, 0, status.LastScanFound)
	assert.Equal(t, report.FinishedAt, status.LastScanAt)
	assert.InDelta(t, 2500, status.RefPrice, 1e-9)
}

func TestStatusTracker_NilCallbacks(t *testing.T) {
	tracker := NewStatusTracker("once", nil, nil)

	status := tracker.Snapshot()

	assert.Equal(t, "once", status.Mode)
	assert.Zero(t, status.ActivePairs)
	assert.Zero(t, status.RefPrice)
}
