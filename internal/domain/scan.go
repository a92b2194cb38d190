package domain

import "time"

// ScanReport summarizes one completed scan pass. Opportunities holds the
// globally filtered result set sorted by net profit descending.
type ScanReport struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      time.Duration
	PairsScanned  int
	PairsSkipped  int // provider failures and missing data
	Evaluated     int // ladder candidates simulated
	Found         int // opportunities before global filters
	Opportunities []Opportunity
	TopNetProfit  float64
}

// ScannerStatus is the operational snapshot served by the status endpoint.
type ScannerStatus struct {
	Mode          string
	UptimeSeconds int64
	ActivePairs   int
	LastScanAt    time.Time
	LastScanFound int
	ScansRun      int64
	RefPrice      float64
}
