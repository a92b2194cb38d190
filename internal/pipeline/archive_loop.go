package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// ArchiveObserver records archived row counts per table.
type ArchiveObserver interface {
	RecordArchived(table string, rows int64)
}

// ArchiveLoop periodically moves rows older than the retention window to
// cold storage. The blob archiver prunes rows only after a verified upload,
// so a failed sweep leaves everything in place for the next tick.
type ArchiveLoop struct {
	archiver      domain.Archiver
	observer      ArchiveObserver
	reporter      *Reporter
	retentionDays int
	interval      time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// ArchiveLoopDeps bundles the collaborators for NewArchiveLoop. Archiver is
// required; Observer and Reporter are optional.
type ArchiveLoopDeps struct {
	Archiver domain.Archiver
	Observer ArchiveObserver
	Reporter *Reporter
	Logger   *slog.Logger
}

// ArchiveLoopConfig tunes the sweep cadence and retention window.
type ArchiveLoopConfig struct {
	RetentionDays int
	Interval      time.Duration
}

// NewArchiveLoop creates an ArchiveLoop.
func NewArchiveLoop(deps ArchiveLoopDeps, cfg ArchiveLoopConfig) *ArchiveLoop {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = NewReporter(nil, nil, logger)
	}
	return &ArchiveLoop{
		archiver:      deps.Archiver,
		observer:      deps.Observer,
		reporter:      reporter,
		retentionDays: cfg.RetentionDays,
		interval:      cfg.Interval,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archive_loop")),
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *ArchiveLoop) WithClock(now func() time.Time) *ArchiveLoop {
	l.now = now
	return l
}

// Name implements Job.
func (l *ArchiveLoop) Name() string { return "archive" }

// Run sweeps on the configured interval until ctx is cancelled. The first
// sweep happens one interval after start, not immediately, so restart churn
// does not trigger back-to-back sweeps.
func (l *ArchiveLoop) Run(ctx context.Context) error {
	l.logger.Info("archive loop started",
		slog.Duration("interval", l.interval),
		slog.Int("retention_days", l.retentionDays),
	)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("archive loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := l.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.reporter.ReportError(ctx, "archive", err)
			}
		}
	}
}

// Sweep executes a single archive pass. The cutoff is the retention window
// back from now; both opportunity and scan-run rows older than it move to
// cold storage.
func (l *ArchiveLoop) Sweep(ctx context.Context) error {
	cutoff := l.now().UTC().AddDate(0, 0, -l.retentionDays)
	l.logger.Info("archive sweep starting",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", l.retentionDays),
	)

	opps, err := l.archiver.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving opportunities before %v: %w", cutoff, err)
	}
	if l.observer != nil {
		l.observer.RecordArchived("opportunities", opps)
	}

	runs, err := l.archiver.ArchiveScanRuns(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving scan runs before %v: %w", cutoff, err)
	}
	if l.observer != nil {
		l.observer.RecordArchived("scan_runs", runs)
	}

	l.logger.Info("archive sweep complete",
		slog.Int64("opportunities_archived", opps),
		slog.Int64("scan_runs_archived", runs),
	)
	return nil
}
