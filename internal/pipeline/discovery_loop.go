package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// PairRefresher runs a discovery pass and returns the resulting pair set.
type PairRefresher interface {
	Refresh(ctx context.Context, force bool) ([]domain.DiscoveredPair, error)
}

// DiscoveryObserver folds discovery outcomes into gauges.
type DiscoveryObserver interface {
	ObserveDiscovery(pairs int, d time.Duration)
	SetActivePairs(n int)
}

// DiscoveryLoop keeps the pair registry fresh. The start pass is lazy, so a
// registry warmed from the store is served as-is; every tick after that
// forces a full discovery run. The registry's refresh lock collapses
// overlapping runs from other replicas.
type DiscoveryLoop struct {
	pairs    PairRefresher
	observer DiscoveryObserver
	reporter *Reporter
	interval time.Duration
	logger   *slog.Logger
}

// DiscoveryLoopDeps bundles the collaborators for NewDiscoveryLoop. Pairs is
// required; Observer and Reporter are optional.
type DiscoveryLoopDeps struct {
	Pairs    PairRefresher
	Observer DiscoveryObserver
	Reporter *Reporter
	Logger   *slog.Logger
}

// NewDiscoveryLoop creates a DiscoveryLoop refreshing at the given interval.
func NewDiscoveryLoop(deps DiscoveryLoopDeps, interval time.Duration) *DiscoveryLoop {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = NewReporter(nil, nil, logger)
	}
	return &DiscoveryLoop{
		pairs:    deps.Pairs,
		observer: deps.Observer,
		reporter: reporter,
		interval: interval,
		logger:   logger.With(slog.String("component", "discovery_loop")),
	}
}

// Name implements Job.
func (l *DiscoveryLoop) Name() string { return "discovery" }

// Run refreshes the registry until ctx is cancelled.
func (l *DiscoveryLoop) Run(ctx context.Context) error {
	l.logger.Info("discovery loop started", slog.Duration("interval", l.interval))

	l.runOnce(ctx, false)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("discovery loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.runOnce(ctx, true)
		}
	}
}

func (l *DiscoveryLoop) runOnce(ctx context.Context, force bool) {
	start := time.Now()
	pairs, err := l.pairs.Refresh(ctx, force)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.reporter.ReportError(ctx, "discovery", err)
		return
	}

	if l.observer != nil {
		l.observer.ObserveDiscovery(len(pairs), time.Since(start))
		l.observer.SetActivePairs(len(pairs))
	}
}
