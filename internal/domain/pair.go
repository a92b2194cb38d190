package domain

import (
	"fmt"
	"time"
)

// TokenPair is an unordered pair of tokens traded on the scanned venues.
// TokenA is the side trade amounts are denominated in; for hub pairs that is
// the hub asset. Identity is unordered: (A,B) and (B,A) share a Key.
type TokenPair struct {
	TokenA Token
	TokenB Token
}

// Key returns the unordered identity of the pair, suitable for map and cache
// keys. The two addresses are joined in lexicographic order.
func (p TokenPair) Key() string {
	a := NormalizeAddress(p.TokenA.Address)
	b := NormalizeAddress(p.TokenB.Address)
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// Name returns the display form, e.g. "WETH/USDC".
func (p TokenPair) Name() string {
	return p.TokenA.Symbol + "/" + p.TokenB.Symbol
}

// Reversed returns the pair with the token roles swapped.
func (p TokenPair) Reversed() TokenPair {
	return TokenPair{TokenA: p.TokenB, TokenB: p.TokenA}
}

// PairMetrics carries the measurements discovery derives from per-venue
// quotes when validating a candidate pair.
type PairMetrics struct {
	TotalLiquidity    float64 // sum across venues, reference units
	LiquidityRatio    float64 // min/max across venues, in (0,1]
	PriceDeviationPct float64 // |p1-p2|/min(p1,p2)*100
}

// DiscoveredPair is a validated, scored candidate produced by a discovery
// run. Entries live in the pair registry until the next full run replaces
// them; entries older than the staleness horizon drop out of the active set
// but are not deleted early.
type DiscoveredPair struct {
	Pair      TokenPair
	Quotes    map[string]VenueQuote // keyed by venue name
	Metrics   PairMetrics
	Tier      PriorityTier
	Score     float64
	Rank      int // dense 1..N by descending score
	CheckedAt time.Time
}

// Fresh reports whether the entry was checked within maxAge of now.
func (d DiscoveredPair) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(d.CheckedAt) <= maxAge
}

func (d DiscoveredPair) String() string {
	return fmt.Sprintf("%s rank=%d score=%.2f liq=%.2f", d.Pair.Name(), d.Rank, d.Score, d.Metrics.TotalLiquidity)
}
