package domain

import "time"

// VenueQuote is a point-in-time snapshot of one venue's pool for a pair.
// ReserveIn is the TokenA side, ReserveOut the TokenB side, both adjusted to
// whole-token units using the token decimals. A quote is immutable once
// created; a newer snapshot supersedes it rather than mutating it.
type VenueQuote struct {
	Venue       string
	Pair        TokenPair
	ReserveIn   float64
	ReserveOut  float64
	Price       float64 // ReserveOut/ReserveIn
	Liquidity   float64 // reference-unit estimate of pool depth
	BlockNumber uint64
	FetchedAt   time.Time
}

// Usable reports whether the quote has the non-degenerate reserves the
// valuation model requires.
func (q VenueQuote) Usable() bool {
	return q.ReserveIn > 0 && q.ReserveOut > 0
}

// TradeCandidate names one sized trade to evaluate: buy TokenB with Amount of
// TokenA on BuyVenue, sell it back on SellVenue.
type TradeCandidate struct {
	Pair      TokenPair
	Amount    float64 // TokenA units
	BuyVenue  string
	SellVenue string
}
