package handler

import (
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// opportunityView is the API shape of a persisted opportunity.
type opportunityView struct {
	ID          string    `json:"id"`
	ScanID      string    `json:"scan_id,omitempty"`
	Pair        string    `json:"pair"`
	PairKey     string    `json:"pair_key"`
	BuyVenue    string    `json:"buy_venue"`
	SellVenue   string    `json:"sell_venue"`
	TradeAmount float64   `json:"trade_amount"`
	BuyPrice    float64   `json:"buy_price"`
	SellPrice   float64   `json:"sell_price"`
	TokensOut   float64   `json:"tokens_out"`
	GrossProfit float64   `json:"gross_profit"`
	GasCost     float64   `json:"gas_cost"`
	NetProfit   float64   `json:"net_profit"`
	ProfitPct   float64   `json:"profit_pct"`
	BuyImpact   float64   `json:"buy_impact"`
	SellImpact  float64   `json:"sell_impact"`
	Confidence  float64   `json:"confidence"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	DetectedAt  time.Time `json:"detected_at"`
}

func viewOpportunity(opp domain.Opportunity) opportunityView {
	return opportunityView{
		ID:          opp.ID,
		ScanID:      opp.ScanID,
		Pair:        opp.Pair.Name(),
		PairKey:     opp.Pair.Key(),
		BuyVenue:    opp.BuyVenue,
		SellVenue:   opp.SellVenue,
		TradeAmount: opp.TradeAmount,
		BuyPrice:    opp.BuyPrice,
		SellPrice:   opp.SellPrice,
		TokensOut:   opp.TokensOut,
		GrossProfit: opp.GrossProfit,
		GasCost:     opp.GasCost,
		NetProfit:   opp.NetProfit,
		ProfitPct:   opp.ProfitMarginPct(),
		BuyImpact:   opp.BuyImpact,
		SellImpact:  opp.SellImpact,
		Confidence:  opp.Confidence,
		BlockNumber: opp.BlockNumber,
		DetectedAt:  opp.DetectedAt,
	}
}

func viewOpportunities(opps []domain.Opportunity) []opportunityView {
	views := make([]opportunityView, 0, len(opps))
	for _, opp := range opps {
		views = append(views, viewOpportunity(opp))
	}
	return views
}

// scanView is the API shape of a scan run. Opportunities are included only
// on single-run lookups.
type scanView struct {
	ID            string            `json:"id"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
	DurationMs    int64             `json:"duration_ms"`
	PairsScanned  int               `json:"pairs_scanned"`
	PairsSkipped  int               `json:"pairs_skipped"`
	Evaluated     int               `json:"evaluated"`
	Found         int               `json:"found"`
	TopNetProfit  float64           `json:"top_net_profit"`
	Opportunities []opportunityView `json:"opportunities,omitempty"`
}

func viewScan(report domain.ScanReport, withOpps bool) scanView {
	view := scanView{
		ID:           report.ID,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
		DurationMs:   report.Duration.Milliseconds(),
		PairsScanned: report.PairsScanned,
		PairsSkipped: report.PairsSkipped,
		Evaluated:    report.Evaluated,
		Found:        report.Found,
		TopNetProfit: report.TopNetProfit,
	}
	if withOpps {
		view.Opportunities = viewOpportunities(report.Opportunities)
	}
	return view
}

// venueQuoteView is the per-venue slice of a tracked pair.
type venueQuoteView struct {
	Price       float64 `json:"price"`
	Liquidity   float64 `json:"liquidity"`
	BlockNumber uint64  `json:"block_number,omitempty"`
}

// pairView is the API shape of a tracked pair.
type pairView struct {
	Pair              string                    `json:"pair"`
	Key               string                    `json:"key"`
	Tier              string                    `json:"tier"`
	Score             float64                   `json:"score"`
	Rank              int                       `json:"rank"`
	TotalLiquidity    float64                   `json:"total_liquidity"`
	LiquidityRatio    float64                   `json:"liquidity_ratio"`
	PriceDeviationPct float64                   `json:"price_deviation_pct"`
	CheckedAt         time.Time                 `json:"checked_at"`
	Quotes            map[string]venueQuoteView `json:"quotes,omitempty"`
}

func viewPair(p domain.DiscoveredPair) pairView {
	view := pairView{
		Pair:              p.Pair.Name(),
		Key:               p.Pair.Key(),
		Tier:              string(p.Tier),
		Score:             p.Score,
		Rank:              p.Rank,
		TotalLiquidity:    p.Metrics.TotalLiquidity,
		LiquidityRatio:    p.Metrics.LiquidityRatio,
		PriceDeviationPct: p.Metrics.PriceDeviationPct,
		CheckedAt:         p.CheckedAt,
	}
	if len(p.Quotes) > 0 {
		view.Quotes = make(map[string]venueQuoteView, len(p.Quotes))
		for venue, q := range p.Quotes {
			view.Quotes[venue] = venueQuoteView{
				Price:       q.Price,
				Liquidity:   q.Liquidity,
				BlockNumber: q.BlockNumber,
			}
		}
	}
	return view
}

func viewPairs(pairs []domain.DiscoveredPair) []pairView {
	views := make([]pairView, 0, len(pairs))
	for _, p := range pairs {
		views = append(views, viewPair(p))
	}
	return views
}
