// Package feed maintains the reference-currency price (ETH/USD) that gas
// costing and report rendering convert through. The price is refreshed in the
// background; readers never block on I/O.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// PriceFetcher is the HTTP source the feed refreshes from.
type PriceFetcher interface {
	SpotPrice(ctx context.Context, asset, currency string) (float64, error)
}

// Config tunes the feed. Zero values fall back to defaults.
type Config struct {
	Asset    string        // e.g. "ethereum"
	Currency string        // e.g. "usd"
	Fallback float64       // served until the first successful fetch
	TTL      time.Duration // refresh cadence
}

func (c Config) withDefaults() Config {
	if c.Asset == "" {
		c.Asset = "ethereum"
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.Fallback <= 0 {
		c.Fallback = 2000
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	return c
}

// RefPriceFeed implements domain.ReferencePriceSource with a periodically
// refreshed value. Until the first successful fetch it serves the configured
// fallback so the scanner can start without the price API being reachable.
type RefPriceFeed struct {
	fetcher  PriceFetcher
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	onUpdate func(price float64)

	mu        sync.RWMutex
	price     float64
	fetchedAt time.Time
}

// New creates a feed serving cfg.Fallback until Refresh succeeds.
func New(fetcher PriceFetcher, cfg Config, logger *slog.Logger) *RefPriceFeed {
	cfg = cfg.withDefaults()
	return &RefPriceFeed{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "refprice")),
		now:     time.Now,
		price:   cfg.Fallback,
	}
}

// WithClock overrides the time source.
func (f *RefPriceFeed) WithClock(now func() time.Time) *RefPriceFeed {
	f.now = now
	return f
}

// WithOnRefresh registers a callback invoked with each successfully fetched
// price, e.g. to mirror it into a gauge.
func (f *RefPriceFeed) WithOnRefresh(fn func(price float64)) *RefPriceFeed {
	f.onUpdate = fn
	return f
}

// Price returns the latest known price without blocking.
func (f *RefPriceFeed) Price() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.price
}

// Stale reports whether the held price has outlived the TTL. The fallback is
// always considered stale.
func (f *RefPriceFeed) Stale() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fetchedAt.IsZero() || f.now().Sub(f.fetchedAt) >= f.cfg.TTL
}

// Refresh fetches the price once and swaps it in. On failure the previous
// value keeps being served.
func (f *RefPriceFeed) Refresh(ctx context.Context) error {
	price, err := f.fetcher.SpotPrice(ctx, f.cfg.Asset, f.cfg.Currency)
	if err != nil {
		return fmt.Errorf("feed: refresh %s/%s: %w", f.cfg.Asset, f.cfg.Currency, err)
	}
	if price <= 0 {
		return fmt.Errorf("feed: non-positive %s/%s price %f", f.cfg.Asset, f.cfg.Currency, price)
	}

	f.mu.Lock()
	f.price = price
	f.fetchedAt = f.now()
	f.mu.Unlock()

	if f.onUpdate != nil {
		f.onUpdate(price)
	}

	f.logger.DebugContext(ctx, "reference price refreshed",
		slog.String("asset", f.cfg.Asset),
		slog.Float64("price", price))
	return nil
}

// Run refreshes on the TTL cadence until ctx is cancelled. One refresh runs
// immediately on entry so consumers move off the fallback quickly.
func (f *RefPriceFeed) Run(ctx context.Context) error {
	if err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
		f.logger.WarnContext(ctx, "initial reference price fetch failed; serving fallback",
			slog.Float64("fallback", f.cfg.Fallback),
			slog.Any("error", err))
	}

	ticker := time.NewTicker(f.cfg.TTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
				f.logger.WarnContext(ctx, "reference price refresh failed; keeping previous value",
					slog.Any("error", err))
			}
		}
	}
}

var _ domain.ReferencePriceSource = (*RefPriceFeed)(nil)
