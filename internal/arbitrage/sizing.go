package arbitrage

import (
	"context"
	"errors"
	"sort"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// DefaultLadderFractions are the liquidity fractions tried per pair when the
// configuration does not override them.
var DefaultLadderFractions = []float64{0.01, 0.025, 0.05, 0.10}

// SizingConfig bounds the trade-size ladder.
type SizingConfig struct {
	LadderFractions []float64 // fractions of the smaller venue's liquidity
	MaxTradeSize    float64   // reference-unit cap per trade; 0 disables
}

// SearchResult reports the outcome of one ladder search over a pair.
type SearchResult struct {
	Best      domain.Opportunity
	Found     bool
	Evaluated int // candidates simulated
	Rejected  int // candidates dismissed by a valuation guard
}

// Sizer proposes candidate trade sizes for a pair and keeps the best
// evaluated one. Profit is not monotonic in size (gross profit grows roughly
// linearly while impact grows super-linearly), so a small bounded ladder
// replaces continuous optimization.
type Sizer struct {
	evaluator *Evaluator
	cfg       SizingConfig
}

// NewSizer creates a Sizer over the given evaluator.
func NewSizer(evaluator *Evaluator, cfg SizingConfig) *Sizer {
	if len(cfg.LadderFractions) == 0 {
		cfg.LadderFractions = DefaultLadderFractions
	}
	return &Sizer{evaluator: evaluator, cfg: cfg}
}

// Ladder returns the candidate amounts for one pair in ascending order:
// each configured fraction of the smaller venue's liquidity, clamped to the
// max trade size, deduplicated after clamping.
func (s *Sizer) Ladder(qa, qb domain.VenueQuote) []float64 {
	minLiq := qa.Liquidity
	if qb.Liquidity < minLiq {
		minLiq = qb.Liquidity
	}
	if minLiq <= 0 {
		return nil
	}

	amounts := make([]float64, 0, len(s.cfg.LadderFractions))
	for _, f := range s.cfg.LadderFractions {
		amount := minLiq * f
		if s.cfg.MaxTradeSize > 0 && amount > s.cfg.MaxTradeSize {
			amount = s.cfg.MaxTradeSize
		}
		if amount <= 0 {
			continue
		}
		amounts = append(amounts, amount)
	}
	sort.Float64s(amounts)

	// Clamping can collapse several fractions onto the cap; evaluate each
	// amount once.
	dedup := amounts[:0]
	for i, a := range amounts {
		if i == 0 || a != amounts[i-1] {
			dedup = append(dedup, a)
		}
	}
	return dedup
}

// Search evaluates the ladder for one pair and returns the best candidate by
// net profit. Ties prefer the lower combined price impact, then the larger
// trade amount. It returns ErrDataUnavailable when either quote is unusable;
// guard rejections are counted, not returned.
func (s *Sizer) Search(ctx context.Context, pair domain.TokenPair, qa, qb domain.VenueQuote) (SearchResult, error) {
	if !qa.Usable() || !qb.Usable() {
		return SearchResult{}, domain.ErrDataUnavailable
	}

	var res SearchResult
	for _, amount := range s.Ladder(qa, qb) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		opp, err := s.evaluator.Evaluate(ctx, pair, amount, qa, qb)
		res.Evaluated++
		if err != nil {
			if errors.Is(err, domain.ErrGuardRejected) {
				res.Rejected++
				continue
			}
			return res, err
		}

		if !res.Found || better(opp, res.Best) {
			res.Best = opp
			res.Found = true
		}
	}
	return res, nil
}

// better reports whether a should replace b as the best candidate.
func better(a, b domain.Opportunity) bool {
	if a.NetProfit != b.NetProfit {
		return a.NetProfit > b.NetProfit
	}
	if a.CombinedImpact() != b.CombinedImpact() {
		return a.CombinedImpact() < b.CombinedImpact()
	}
	return a.TradeAmount > b.TradeAmount
}
