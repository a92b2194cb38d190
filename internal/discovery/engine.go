// Package discovery generates, validates, and ranks the token pairs worth
// scanning. Generation bounds the candidate set with a hub asset, a stable
// set, and per-tier caps; validation is a data-quality pass over live venue
// quotes; ranking orders survivors by a liquidity-weighted score. The
// registry owns the resulting cache and its staleness horizon.
package discovery

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// Config bounds generation and validation and sets the scoring weights.
type Config struct {
	Hub           domain.Token
	Universe      []domain.Token // includes the hub
	StableSymbols []string       // subset of the universe paired among themselves

	MaxPairsPerToken  int     // generation cap per token symbol
	MinVenueLiquidity float64 // per-venue floor, reference units
	MaxPriceDeviation float64 // cross-venue sanity bound, fractional
	MaxTrackedPairs   int     // ranked output truncation

	BatchSize  int           // candidates validated per batch
	BatchDelay time.Duration // pause between validation batches

	LiquidityReference float64 // total liquidity earning one score point
	LiquidityScoreCap  float64
	DeviationWeight    float64 // points per percent of price deviation
	BalanceWeight      float64 // points for perfectly balanced venues
}

func (c Config) withDefaults() Config {
	if c.MaxPairsPerToken <= 0 {
		c.MaxPairsPerToken = 5
	}
	if c.MinVenueLiquidity <= 0 {
		c.MinVenueLiquidity = 10
	}
	if c.MaxPriceDeviation <= 0 {
		c.MaxPriceDeviation = 0.10
	}
	if c.MaxTrackedPairs <= 0 {
		c.MaxTrackedPairs = 20
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = time.Second
	}
	if c.LiquidityReference <= 0 {
		c.LiquidityReference = 100
	}
	if c.LiquidityScoreCap <= 0 {
		c.LiquidityScoreCap = 10
	}
	if c.DeviationWeight <= 0 {
		c.DeviationWeight = 10
	}
	if c.BalanceWeight <= 0 {
		c.BalanceWeight = 5
	}
	return c
}

// Engine runs one discovery pass over the configured token universe.
type Engine struct {
	provider domain.QuoteProvider
	refPrice domain.ReferencePriceSource // hub-unit conversion for stable-quoted pools; optional
	cfg      Config
	venues   []string
	stable   map[string]bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an Engine over the given quote provider.
func NewEngine(provider domain.QuoteProvider, refPrice domain.ReferencePriceSource, cfg Config, logger *slog.Logger) *Engine {
	names := make([]string, 0, 2)
	for _, v := range provider.Venues() {
		names = append(names, v.Name)
	}
	cfg = cfg.withDefaults()
	stable := make(map[string]bool, len(cfg.StableSymbols))
	for _, s := range cfg.StableSymbols {
		stable[s] = true
	}
	return &Engine{
		provider: provider,
		refPrice: refPrice,
		cfg:      cfg,
		venues:   names,
		stable:   stable,
		logger:   logger.With(slog.String("component", "discovery")),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Generate builds the candidate pair list: every non-hub token paired with
// the hub, stables paired among themselves, and same-tier combinations, in
// tier order so higher tiers consume the per-token budget first. Unordered
// duplicates collapse onto one candidate and no token exceeds its cap.
func (e *Engine) Generate() []domain.TokenPair {
	byTier := make(map[domain.PriorityTier][]domain.Token, 3)
	for _, t := range e.cfg.Universe {
		byTier[t.Tier] = append(byTier[t.Tier], t)
	}

	var raw []domain.TokenPair
	for _, tier := range []domain.PriorityTier{domain.TierHigh, domain.TierMedium, domain.TierLow} {
		tokens := byTier[tier]

		if e.cfg.Hub.Address != "" {
			for _, t := range tokens {
				if !t.Equal(e.cfg.Hub) {
					raw = append(raw, domain.TokenPair{TokenA: e.cfg.Hub, TokenB: t})
				}
			}
		}

		var stables []domain.Token
		for _, t := range tokens {
			if e.stable[t.Symbol] {
				stables = append(stables, t)
			}
		}
		for i := 0; i < len(stables); i++ {
			for j := i + 1; j < len(stables); j++ {
				raw = append(raw, domain.TokenPair{TokenA: stables[i], TokenB: stables[j]})
			}
		}

		for i := 0; i < len(tokens); i++ {
			for j := i + 1; j < len(tokens); j++ {
				raw = append(raw, domain.TokenPair{TokenA: tokens[i], TokenB: tokens[j]})
			}
		}
	}

	seen := make(map[string]bool, len(raw))
	budget := make(map[string]int)
	out := make([]domain.TokenPair, 0, len(raw))
	for _, p := range raw {
		key := p.Key()
		if seen[key] {
			continue
		}
		if budget[p.TokenA.Symbol] >= e.cfg.MaxPairsPerToken || budget[p.TokenB.Symbol] >= e.cfg.MaxPairsPerToken {
			continue
		}
		seen[key] = true
		budget[p.TokenA.Symbol]++
		budget[p.TokenB.Symbol]++
		out = append(out, p)
	}
	return out
}

// Validate checks one candidate against live quotes from every venue: the
// pair must exist everywhere, each venue must clear the liquidity floor, and
// the cross-venue price deviation must stay under the sanity bound. The
// deviation guard protects against stale or broken pools, it is not a profit
// signal. Liquidity figures here are hub-unit estimates so one floor and one
// scoring scale apply across hub and stable pairs alike.
func (e *Engine) Validate(ctx context.Context, pair domain.TokenPair) (domain.DiscoveredPair, error) {
	quotes := make(map[string]domain.VenueQuote, len(e.venues))
	for _, venue := range e.venues {
		q, err := e.provider.GetQuote(ctx, pair, venue)
		if err != nil {
			return domain.DiscoveredPair{}, err
		}
		if !q.Usable() || e.hubLiquidity(pair, q) < e.cfg.MinVenueLiquidity {
			return domain.DiscoveredPair{}, &domain.GuardError{
				Guard: "venue_liquidity", Value: e.hubLiquidity(pair, q), Limit: e.cfg.MinVenueLiquidity,
			}
		}
		quotes[venue] = q
	}

	lowLiq, highLiq := math.Inf(1), 0.0
	lowPrice, highPrice := math.Inf(1), 0.0
	total := 0.0
	for _, q := range quotes {
		liq := e.hubLiquidity(pair, q)
		total += liq
		lowLiq = math.Min(lowLiq, liq)
		highLiq = math.Max(highLiq, liq)
		lowPrice = math.Min(lowPrice, q.Price)
		highPrice = math.Max(highPrice, q.Price)
	}

	deviation := (highPrice - lowPrice) / lowPrice
	if deviation > e.cfg.MaxPriceDeviation {
		return domain.DiscoveredPair{}, &domain.GuardError{
			Guard: "price_deviation", Value: deviation, Limit: e.cfg.MaxPriceDeviation,
		}
	}

	return domain.DiscoveredPair{
		Pair:   pair,
		Quotes: quotes,
		Metrics: domain.PairMetrics{
			TotalLiquidity:    total,
			LiquidityRatio:    lowLiq / highLiq,
			PriceDeviationPct: deviation * 100,
		},
		Tier:      e.pairTier(pair),
		CheckedAt: e.now().UTC(),
	}, nil
}

// Discover runs a full pass: generate, validate in batches with a pause
// between them, then score, rank, and truncate. Failing candidates are
// dropped and counted, never fatal.
func (e *Engine) Discover(ctx context.Context) ([]domain.DiscoveredPair, error) {
	candidates := e.Generate()
	e.logger.InfoContext(ctx, "discovery pass started",
		slog.Int("candidates", len(candidates)),
	)

	var valid []domain.DiscoveredPair
	dropped := 0
	for i, pair := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 && i%e.cfg.BatchSize == 0 {
			if err := sleepCtx(ctx, e.cfg.BatchDelay); err != nil {
				return nil, err
			}
		}

		dp, err := e.Validate(ctx, pair)
		if err != nil {
			dropped++
			e.logCandidate(ctx, pair, err)
			continue
		}
		valid = append(valid, dp)
	}

	ranked := e.rank(valid)
	e.logger.InfoContext(ctx, "discovery pass finished",
		slog.Int("valid", len(ranked)),
		slog.Int("dropped", dropped),
	)
	return ranked, nil
}

func (e *Engine) logCandidate(ctx context.Context, pair domain.TokenPair, err error) {
	switch {
	case domain.IsGuardRejected(err), domain.IsDataUnavailable(err):
		e.logger.DebugContext(ctx, "candidate discarded",
			slog.String("pair", pair.Name()),
			slog.String("reason", err.Error()),
		)
	case ctx.Err() != nil:
	default:
		e.logger.WarnContext(ctx, "candidate check failed",
			slog.String("pair", pair.Name()),
			slog.String("error", err.Error()),
		)
	}
}

// Score combines liquidity depth, cross-venue deviation, pair tier, and
// venue balance into one figure. Deviation rewards pairs whose venues
// already disagree; balance rewards pairs tradeable in both directions.
func (e *Engine) Score(dp domain.DiscoveredPair) float64 {
	liquidityScore := math.Min(dp.Metrics.TotalLiquidity/e.cfg.LiquidityReference, e.cfg.LiquidityScoreCap)
	deviationScore := dp.Metrics.PriceDeviationPct * e.cfg.DeviationWeight
	balanceScore := dp.Metrics.LiquidityRatio * e.cfg.BalanceWeight
	return liquidityScore + deviationScore + dp.Tier.Score() + balanceScore
}

// rank scores, orders descending (pair identity breaks ties for
// determinism), assigns dense ranks from 1, and truncates.
func (e *Engine) rank(pairs []domain.DiscoveredPair) []domain.DiscoveredPair {
	for i := range pairs {
		pairs[i].Score = e.Score(pairs[i])
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		return pairs[i].Pair.Key() < pairs[j].Pair.Key()
	})

	rank := 0
	prev := math.Inf(1)
	for i := range pairs {
		if pairs[i].Score != prev {
			rank++
			prev = pairs[i].Score
		}
		pairs[i].Rank = rank
	}

	if len(pairs) > e.cfg.MaxTrackedPairs {
		pairs = pairs[:e.cfg.MaxTrackedPairs]
	}
	return pairs
}

// hubLiquidity estimates a pool's depth in hub units. Hub-sided pools read
// the hub reserve directly; stable-quoted pools convert through the
// reference price; anything else falls back to the TokenA reserve.
func (e *Engine) hubLiquidity(pair domain.TokenPair, q domain.VenueQuote) float64 {
	switch {
	case pair.TokenA.Equal(e.cfg.Hub):
		return q.ReserveIn
	case pair.TokenB.Equal(e.cfg.Hub):
		return q.ReserveOut
	case e.stable[pair.TokenA.Symbol] && e.refPrice != nil:
		if p := e.refPrice.Price(); p > 0 {
			return q.ReserveIn / p
		}
	}
	return q.ReserveIn
}

// pairTier derives a pair's tier from its tokens: two high-tier tokens make
// a high pair, one high or two medium make a medium pair, anything else low.
func (e *Engine) pairTier(pair domain.TokenPair) domain.PriorityTier {
	a, b := pair.TokenA.Tier, pair.TokenB.Tier
	switch {
	case a == domain.TierHigh && b == domain.TierHigh:
		return domain.TierHigh
	case a == domain.TierHigh || b == domain.TierHigh:
		return domain.TierMedium
	case a == domain.TierMedium && b == domain.TierMedium:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
