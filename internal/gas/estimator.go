// Package gas estimates the transaction cost of executing a two-leg swap.
// The network fee rate is fetched through a FeeRateSource and held in an
// explicit TTL cache so estimates stay cheap between refreshes.
package gas

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultBaseGasUnits    = 350_000
	DefaultRefreshInterval = 30 * time.Second
	DefaultRateGwei        = 30
)

// Config tunes the estimator.
type Config struct {
	BaseGasUnits    float64       // gas units for one two-leg trade
	MaxFeeRateGwei  float64       // spike shield; 0 disables the cap
	DefaultRateGwei float64       // served before the first successful fetch
	RefreshInterval time.Duration // fee-rate cache TTL
}

func (c Config) withDefaults() Config {
	if c.BaseGasUnits <= 0 {
		c.BaseGasUnits = DefaultBaseGasUnits
	}
	if c.DefaultRateGwei <= 0 {
		c.DefaultRateGwei = DefaultRateGwei
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	return c
}

// Cost is one trade's estimated transaction cost in both ledgers the scanner
// reports in. ETH is authoritative for hub-denominated pairs; USD uses the
// refreshable reference price.
type Cost struct {
	GasUnits float64
	RateGwei float64
	ETH      float64
	USD      float64
}

// rateCache is the TTL cache for the current fee rate. The clock is injected
// so expiry is testable without sleeping.
type rateCache struct {
	mu        sync.RWMutex
	rateGwei  float64
	fetchedAt time.Time
	ever      bool // a fetch has succeeded at least once
}

func (c *rateCache) get(now time.Time, ttl time.Duration) (rate float64, fresh, ever bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rateGwei, c.ever && now.Sub(c.fetchedAt) < ttl, c.ever
}

func (c *rateCache) set(rate float64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateGwei = rate
	c.fetchedAt = now
	c.ever = true
}

// Estimator converts the cached network fee rate into a per-trade cost
// estimate. Safe for concurrent use.
type Estimator struct {
	source   domain.FeeRateSource
	refPrice domain.ReferencePriceSource
	cfg      Config
	cache    rateCache
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an Estimator. source may fail transiently; the estimator then
// serves the last cached rate, or the configured default before any fetch
// has succeeded.
func New(source domain.FeeRateSource, refPrice domain.ReferencePriceSource, cfg Config, logger *slog.Logger) *Estimator {
	return &Estimator{
		source:   source,
		refPrice: refPrice,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "gas_estimator")),
	}
}

// WithClock overrides the time source. Intended for tests.
func (e *Estimator) WithClock(now func() time.Time) *Estimator {
	e.now = now
	return e
}

// FeeRate returns the current fee rate in gwei, refreshing the cache when the
// TTL has lapsed. Fetch failures fall back to the last cached value, or the
// configured default if nothing was ever fetched.
func (e *Estimator) FeeRate(ctx context.Context) float64 {
	now := e.now()
	rate, fresh, ever := e.cache.get(now, e.cfg.RefreshInterval)
	if fresh {
		return rate
	}

	fetched, err := e.source.CurrentRate(ctx)
	if err != nil || fetched <= 0 {
		if err != nil {
			e.logger.WarnContext(ctx, "fee rate fetch failed, serving fallback",
				slog.String("error", err.Error()),
				slog.Bool("cached", ever),
			)
		}
		if ever {
			return rate
		}
		return e.cfg.DefaultRateGwei
	}

	if e.cfg.MaxFeeRateGwei > 0 && fetched > e.cfg.MaxFeeRateGwei {
		e.logger.DebugContext(ctx, "fee rate capped",
			slog.Float64("fetched_gwei", fetched),
			slog.Float64("cap_gwei", e.cfg.MaxFeeRateGwei),
		)
		fetched = e.cfg.MaxFeeRateGwei
	}

	e.cache.set(fetched, now)
	return fetched
}

// EstimateCost estimates the transaction cost of a trade of the given size in
// reference units. The base gas units grow with trade size, reflecting the
// extra revert and retry exposure of larger swaps:
//
//	units = base * (1 + amount/10 * 0.1)
func (e *Estimator) EstimateCost(ctx context.Context, tradeAmount float64) Cost {
	rate := e.FeeRate(ctx)
	units := e.cfg.BaseGasUnits * sizeMultiplier(tradeAmount)
	eth := units * rate / 1e9

	return Cost{
		GasUnits: units,
		RateGwei: rate,
		ETH:      eth,
		USD:      eth * e.refPrice.Price(),
	}
}

// sizeMultiplier scales the base gas units by 10% per 10 reference units of
// trade size.
func sizeMultiplier(tradeAmount float64) float64 {
	if tradeAmount <= 0 {
		return 1
	}
	return 1 + tradeAmount/10*0.1
}
