// Package arbitrage contains the valuation core of the scanner: two-leg
// trade simulation against venue reserves, the trade-size ladder search, and
// the scan orchestrator that drives both across the active pair set.
package arbitrage

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/quellen-dev/dexscan/internal/amm"
	"github.com/quellen-dev/dexscan/internal/domain"
	"github.com/quellen-dev/dexscan/internal/gas"
)

// DefaultPoolFee is assumed for venues without a configured swap fee.
const DefaultPoolFee = 0.003

// Confidence weights and default normalizers. A combined two-leg impact of
// ImpactReference zeroes the impact term; LiquidityReference is the pool
// depth (reference units) that earns a full liquidity score; MarginReference
// is the net margin percentage that earns a full profit score.
const (
	impactWeight    = 0.4
	liquidityWeight = 0.3
	profitWeight    = 0.3

	DefaultImpactReference    = 0.10
	DefaultLiquidityReference = 100.0
	DefaultMarginReference    = 5.0
)

// EvaluatorConfig holds the valuation bounds and confidence normalizers.
type EvaluatorConfig struct {
	MaxPriceImpact     float64            // per leg, fractional, e.g. 0.05
	MinGrossProfit     float64            // reference-unit floor before gas
	ImpactReference    float64            // confidence normalizer
	LiquidityReference float64            // confidence normalizer
	MarginReference    float64            // confidence normalizer, percent
	VenueFees          map[string]float64 // venue name -> pool fee fraction
	Hub                domain.Token       // reference asset; see gas ledger note below
}

func (c EvaluatorConfig) withDefaults() EvaluatorConfig {
	if c.MaxPriceImpact <= 0 {
		c.MaxPriceImpact = 0.05
	}
	if c.ImpactReference <= 0 {
		c.ImpactReference = DefaultImpactReference
	}
	if c.LiquidityReference <= 0 {
		c.LiquidityReference = DefaultLiquidityReference
	}
	if c.MarginReference <= 0 {
		c.MarginReference = DefaultMarginReference
	}
	return c
}

// Evaluator turns a sized candidate plus two venue quotes into a completed
// Opportunity, or a typed rejection. The two-leg simulation is authoritative:
// leg one swaps the trade amount into TokenB on the cheaper venue, leg two
// swaps that output back into TokenA on the other venue, so slippage
// compounds across legs exactly as it would on chain.
type Evaluator struct {
	estimator *gas.Estimator
	cfg       EvaluatorConfig
	now       func() time.Time
}

// NewEvaluator creates an Evaluator using the given gas estimator.
func NewEvaluator(estimator *gas.Estimator, cfg EvaluatorConfig) *Evaluator {
	return &Evaluator{
		estimator: estimator,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate simulates buying TokenB with amount TokenA on the cheaper venue
// and selling it back on the other. It returns ErrDataUnavailable when either
// quote is unusable and a GuardError when a valuation bound rejects the
// candidate. An emitted Opportunity always has NetProfit > 0 and every field
// populated.
func (e *Evaluator) Evaluate(ctx context.Context, pair domain.TokenPair, amount float64, qa, qb domain.VenueQuote) (domain.Opportunity, error) {
	if !qa.Usable() || !qb.Usable() {
		return domain.Opportunity{}, domain.ErrDataUnavailable
	}
	if amount <= 0 {
		return domain.Opportunity{}, &domain.GuardError{Guard: "trade_amount", Value: amount, Limit: 0}
	}

	// Buy where TokenB is cheaper in TokenA terms, i.e. where the pool pays
	// out more TokenB per TokenA.
	buy, sell := qa, qb
	if qb.Price > qa.Price {
		buy, sell = qb, qa
	}

	leg1 := amm.Swap(buy.ReserveIn, buy.ReserveOut, amount, e.feeFor(buy.Venue))
	if leg1.Impact > e.cfg.MaxPriceImpact {
		return domain.Opportunity{}, &domain.GuardError{Guard: "buy_leg_impact", Value: leg1.Impact, Limit: e.cfg.MaxPriceImpact}
	}

	// Leg two runs against the sell venue with the token roles reversed:
	// TokenB in, TokenA out.
	leg2 := amm.Swap(sell.ReserveOut, sell.ReserveIn, leg1.AmountOut, e.feeFor(sell.Venue))
	if leg2.Impact > e.cfg.MaxPriceImpact {
		return domain.Opportunity{}, &domain.GuardError{Guard: "sell_leg_impact", Value: leg2.Impact, Limit: e.cfg.MaxPriceImpact}
	}

	gross := leg2.AmountOut - amount
	if gross <= e.cfg.MinGrossProfit {
		return domain.Opportunity{}, &domain.GuardError{Guard: "gross_profit", Value: gross, Limit: e.cfg.MinGrossProfit}
	}

	gasCost := e.gasInPairUnits(ctx, pair, amount)
	net := gross - gasCost
	if net <= 0 {
		return domain.Opportunity{}, &domain.GuardError{Guard: "net_profit", Value: net, Limit: 0}
	}

	marginPct := net / amount * 100
	block := buy.BlockNumber
	if sell.BlockNumber > block {
		block = sell.BlockNumber
	}

	return domain.Opportunity{
		ID:          uuid.NewString(),
		Pair:        pair,
		BuyVenue:    buy.Venue,
		SellVenue:   sell.Venue,
		TradeAmount: amount,
		BuyPrice:    buy.Price,
		SellPrice:   sell.Price,
		TokensOut:   leg1.AmountOut,
		GrossProfit: gross,
		GasCost:     gasCost,
		NetProfit:   net,
		BuyImpact:   leg1.Impact,
		SellImpact:  leg2.Impact,
		Confidence:  e.confidence(leg1.Impact, leg2.Impact, buy.Liquidity, sell.Liquidity, marginPct),
		BlockNumber: block,
		DetectedAt:  e.now().UTC(),
	}, nil
}

// gasInPairUnits expresses the gas estimate in the pair's TokenA ledger. Hub
// pairs subtract the native-unit cost directly; non-hub TokenA sides are
// stable assets by construction of the discovery rules, so the USD figure
// from the reference price stands in for them.
func (e *Evaluator) gasInPairUnits(ctx context.Context, pair domain.TokenPair, amount float64) float64 {
	cost := e.estimator.EstimateCost(ctx, amount)
	if e.cfg.Hub.Address == "" || pair.TokenA.Equal(e.cfg.Hub) {
		return cost.ETH
	}
	return cost.USD
}

func (e *Evaluator) feeFor(venue string) float64 {
	if f, ok := e.cfg.VenueFees[venue]; ok && f > 0 {
		return f
	}
	return DefaultPoolFee
}

// confidence blends impact, liquidity, and margin into one [0,1] figure.
func (e *Evaluator) confidence(buyImpact, sellImpact, buyLiq, sellLiq, marginPct float64) float64 {
	impactScore := clamp01(1 - (buyImpact+sellImpact)/e.cfg.ImpactReference)
	liquidityScore := clamp01(math.Min(buyLiq, sellLiq) / e.cfg.LiquidityReference)
	profitScore := clamp01(marginPct / e.cfg.MarginReference)

	return clamp01(impactWeight*impactScore + liquidityWeight*liquidityScore + profitWeight*profitScore)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
