package domain

import "time"

// Opportunity is a fully evaluated arbitrage candidate with positive net
// profit. Records are all-or-nothing: either every field below is populated
// by the evaluator or no record is emitted at all. Never mutated after
// creation.
type Opportunity struct {
	ID          string
	ScanID      string
	Pair        TokenPair
	BuyVenue    string
	SellVenue   string
	TradeAmount float64 // TokenA units in
	BuyPrice    float64
	SellPrice   float64
	TokensOut   float64 // TokenB received on the buy leg
	GrossProfit float64
	GasCost     float64
	NetProfit   float64
	BuyImpact   float64 // fractional, [0,1]
	SellImpact  float64 // fractional, [0,1]
	Confidence  float64 // [0,1]
	BlockNumber uint64
	DetectedAt  time.Time
}

// ProfitMarginPct returns net profit as a percentage of the trade amount.
func (o Opportunity) ProfitMarginPct() float64 {
	if o.TradeAmount <= 0 {
		return 0
	}
	return o.NetProfit / o.TradeAmount * 100
}

// CombinedImpact returns the summed price impact across both legs.
func (o Opportunity) CombinedImpact() float64 {
	return o.BuyImpact + o.SellImpact
}
