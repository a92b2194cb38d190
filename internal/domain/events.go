package domain

import "time"

// Event names carried on the signal bus and matched against the notifier's
// subscription list.
const (
	EventOpportunityFound   = "opportunity_found"
	EventScanCompleted      = "scan_completed"
	EventDiscoveryCompleted = "discovery_completed"
	EventError              = "error"
)

// Bus channels events are published on. Stream names reuse the channel
// names, so consumers that missed the live publish can replay from the
// stream of the same name.
const (
	ChannelOpportunities = "opportunities"
	ChannelScans         = "scans"
	ChannelDiscovery     = "discovery"
	ChannelErrors        = "errors"
)

// OpportunityEvent is the wire payload published for each kept opportunity.
type OpportunityEvent struct {
	Event       string    `json:"event"`
	ID          string    `json:"id"`
	ScanID      string    `json:"scan_id,omitempty"`
	Pair        string    `json:"pair"`
	PairKey     string    `json:"pair_key"`
	BuyVenue    string    `json:"buy_venue"`
	SellVenue   string    `json:"sell_venue"`
	TradeAmount float64   `json:"trade_amount"`
	NetProfit   float64   `json:"net_profit"`
	ProfitPct   float64   `json:"profit_pct"`
	Confidence  float64   `json:"confidence"`
	DetectedAt  time.Time `json:"detected_at"`
}

// NewOpportunityEvent builds the bus payload for an opportunity.
func NewOpportunityEvent(opp Opportunity) OpportunityEvent {
	return OpportunityEvent{
		Event:       EventOpportunityFound,
		ID:          opp.ID,
		ScanID:      opp.ScanID,
		Pair:        opp.Pair.Name(),
		PairKey:     opp.Pair.Key(),
		BuyVenue:    opp.BuyVenue,
		SellVenue:   opp.SellVenue,
		TradeAmount: opp.TradeAmount,
		NetProfit:   opp.NetProfit,
		ProfitPct:   opp.ProfitMarginPct(),
		Confidence:  opp.Confidence,
		DetectedAt:  opp.DetectedAt,
	}
}

// ScanEvent is the wire payload published when a scan pass completes.
type ScanEvent struct {
	Event        string    `json:"event"`
	ScanID       string    `json:"scan_id"`
	PairsScanned int       `json:"pairs_scanned"`
	PairsSkipped int       `json:"pairs_skipped"`
	Found        int       `json:"found"`
	Kept         int       `json:"kept"`
	TopNetProfit float64   `json:"top_net_profit"`
	DurationMs   int64     `json:"duration_ms"`
	FinishedAt   time.Time `json:"finished_at"`
}

// NewScanEvent builds the bus payload for a completed scan report.
func NewScanEvent(report ScanReport) ScanEvent {
	return ScanEvent{
		Event:        EventScanCompleted,
		ScanID:       report.ID,
		PairsScanned: report.PairsScanned,
		PairsSkipped: report.PairsSkipped,
		Found:        report.Found,
		Kept:         len(report.Opportunities),
		TopNetProfit: report.TopNetProfit,
		DurationMs:   report.Duration.Milliseconds(),
		FinishedAt:   report.FinishedAt,
	}
}

// DiscoveryEvent is the wire payload published when a discovery run replaces
// the registry.
type DiscoveryEvent struct {
	Event      string    `json:"event"`
	Pairs      int       `json:"pairs"`
	TopScore   float64   `json:"top_score"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewDiscoveryEvent builds the bus payload for a finished discovery run.
func NewDiscoveryEvent(pairs []DiscoveredPair, finishedAt time.Time) DiscoveryEvent {
	evt := DiscoveryEvent{
		Event:      EventDiscoveryCompleted,
		Pairs:      len(pairs),
		FinishedAt: finishedAt,
	}
	for _, p := range pairs {
		if p.Score > evt.TopScore {
			evt.TopScore = p.Score
		}
	}
	return evt
}

// ErrorEvent reports a component failure worth surfacing to operators.
type ErrorEvent struct {
	Event     string    `json:"event"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// NewErrorEvent builds the bus payload for a component failure.
func NewErrorEvent(component string, err error) ErrorEvent {
	return ErrorEvent{
		Event:     EventError,
		Component: component,
		Message:   err.Error(),
		At:        time.Now().UTC(),
	}
}
