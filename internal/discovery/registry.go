package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// State describes the registry cache.
type State string

const (
	StateEmpty     State = "empty"     // no discovery output yet
	StatePopulated State = "populated" // a run completed within the interval
	StateStale     State = "stale"     // interval elapsed, next access triggers a refresh
)

// RegistryConfig tunes the refresh cycle.
type RegistryConfig struct {
	Interval time.Duration // full-run cadence; default 6h
	MaxAge   time.Duration // per-entry staleness horizon; default 24h
	LockTTL  time.Duration // cross-process refresh lock; default 5m
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.Interval <= 0 {
		c.Interval = 6 * time.Hour
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
	return c
}

// Registry owns the discovery cache. A completed run replaces the cached set
// wholesale; between runs the active subset excludes entries older than the
// staleness horizon without deleting them. Store and mirror failures are
// logged and never fatal.
type Registry struct {
	engine *Engine
	store  domain.PairCacheStore     // durable, optional
	mirror domain.PairRegistryCache  // fast cross-process mirror, optional
	locks  domain.LockManager        // single-flight across processes, optional
	cfg    RegistryConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	pairs   []domain.DiscoveredPair
	lastRun time.Time
}

// RegistryDeps bundles the collaborators for NewRegistry. Store, Mirror, and
// Locks may be nil. Engine may be nil too, in which case the registry serves
// hydrated pairs only and refreshes fail with a configuration error.
type RegistryDeps struct {
	Engine *Engine
	Store  domain.PairCacheStore
	Mirror domain.PairRegistryCache
	Locks  domain.LockManager
	Logger *slog.Logger
}

// NewRegistry creates a Registry around the given engine.
func NewRegistry(deps RegistryDeps, cfg RegistryConfig) *Registry {
	return &Registry{
		engine: deps.Engine,
		store:  deps.Store,
		mirror: deps.Mirror,
		locks:  deps.Locks,
		cfg:    cfg.withDefaults(),
		logger: deps.Logger.With(slog.String("component", "pair_registry")),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Load hydrates the registry from the durable store, falling back to the
// mirror. Meant for startup; failures leave the registry empty.
func (r *Registry) Load(ctx context.Context) {
	pairs := r.loadStored(ctx)
	if len(pairs) == 0 {
		return
	}

	last := time.Time{}
	for _, p := range pairs {
		if p.CheckedAt.After(last) {
			last = p.CheckedAt
		}
	}

	r.mu.Lock()
	r.pairs = pairs
	r.lastRun = last
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "registry hydrated",
		slog.Int("pairs", len(pairs)),
		slog.Time("last_run", last),
	)
}

func (r *Registry) loadStored(ctx context.Context) []domain.DiscoveredPair {
	if r.store != nil {
		pairs, err := r.store.Load(ctx)
		if err == nil && len(pairs) > 0 {
			return pairs
		}
		if err != nil && !domain.IsNotFound(err) {
			r.logger.WarnContext(ctx, "pair store load failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if r.mirror != nil {
		pairs, err := r.mirror.GetAll(ctx)
		if err == nil {
			return pairs
		}
		if !domain.IsCacheMiss(err) {
			r.logger.WarnContext(ctx, "pair mirror load failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// State reports where the cache is in its lifecycle.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case len(r.pairs) == 0:
		return StateEmpty
	case r.now().Sub(r.lastRun) >= r.cfg.Interval:
		return StateStale
	default:
		return StatePopulated
	}
}

// Refresh runs a discovery pass unless the cache is still populated and
// force is false. Concurrent refreshes across processes collapse onto one
// run via the lock manager; the loser serves its current snapshot.
func (r *Registry) Refresh(ctx context.Context, force bool) ([]domain.DiscoveredPair, error) {
	if !force && r.State() == StatePopulated {
		return r.Snapshot(), nil
	}
	if r.engine == nil {
		return nil, fmt.Errorf("discovery: no engine wired for refresh: %w", domain.ErrConfiguration)
	}

	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, "discovery:refresh", r.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				r.logger.InfoContext(ctx, "refresh already running elsewhere")
				return r.Snapshot(), nil
			}
			r.logger.WarnContext(ctx, "refresh lock unavailable, proceeding",
				slog.String("error", err.Error()),
			)
		} else {
			defer unlock()
		}
	}

	pairs, err := r.engine.Discover(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	r.mu.Lock()
	r.pairs = pairs
	r.lastRun = now
	r.mu.Unlock()

	r.persist(ctx, pairs)
	return r.Snapshot(), nil
}

func (r *Registry) persist(ctx context.Context, pairs []domain.DiscoveredPair) {
	if r.store != nil {
		if err := r.store.Save(ctx, pairs); err != nil {
			r.logger.WarnContext(ctx, "pair store save failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if r.mirror != nil {
		if err := r.mirror.SetAll(ctx, pairs); err != nil {
			r.logger.WarnContext(ctx, "pair mirror save failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// ActivePairs returns the fresh subset of the cache for the scanner. A stale
// cache triggers a refresh first; entries beyond the staleness horizon are
// excluded but stay cached until the next full run replaces them.
func (r *Registry) ActivePairs(ctx context.Context) ([]domain.DiscoveredPair, error) {
	if r.State() != StatePopulated {
		if _, err := r.Refresh(ctx, false); err != nil {
			r.logger.WarnContext(ctx, "refresh failed, serving cached set",
				slog.String("error", err.Error()),
			)
		}
	}

	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	fresh := make([]domain.DiscoveredPair, 0, len(r.pairs))
	for _, p := range r.pairs {
		if p.Fresh(now, r.cfg.MaxAge) {
			fresh = append(fresh, p)
		}
	}
	return fresh, nil
}

// Snapshot returns the full cached set in rank order, fresh or not.
func (r *Registry) Snapshot() []domain.DiscoveredPair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.DiscoveredPair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

// LastRun reports when the cache was last replaced.
func (r *Registry) LastRun() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun
}
