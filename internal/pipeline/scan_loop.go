package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// ScanRunner runs one scan pass over the active pair set.
type ScanRunner interface {
	Scan(ctx context.Context) (domain.ScanReport, error)
}

// ScanRecorder persists a completed report and fans it out.
type ScanRecorder interface {
	Record(ctx context.Context, report domain.ScanReport) error
}

// ScanObserver folds a completed report into counters. Implementations must
// not block.
type ScanObserver interface {
	ObserveScan(report domain.ScanReport)
}

// ScanLoop drives repeated scan passes: one on start, one per interval tick,
// and one per manual trigger from the API.
type ScanLoop struct {
	scanner   ScanRunner
	recorder  ScanRecorder
	observers []ScanObserver
	reporter  *Reporter
	trigger   <-chan struct{}
	interval  time.Duration
	logger    *slog.Logger
}

// ScanLoopDeps bundles the collaborators for NewScanLoop. Scanner is
// required; the rest are optional. A nil Trigger channel never fires.
type ScanLoopDeps struct {
	Scanner   ScanRunner
	Recorder  ScanRecorder
	Observers []ScanObserver
	Reporter  *Reporter
	Trigger   <-chan struct{}
	Logger    *slog.Logger
}

// NewScanLoop creates a ScanLoop ticking at the given interval.
func NewScanLoop(deps ScanLoopDeps, interval time.Duration) *ScanLoop {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = NewReporter(nil, nil, logger)
	}
	return &ScanLoop{
		scanner:   deps.Scanner,
		recorder:  deps.Recorder,
		observers: deps.Observers,
		reporter:  reporter,
		trigger:   deps.Trigger,
		interval:  interval,
		logger:    logger.With(slog.String("component", "scan_loop")),
	}
}

// Name implements Job.
func (l *ScanLoop) Name() string { return "scan" }

// Run executes scan passes until ctx is cancelled. A failed pass is reported
// and the loop keeps going.
func (l *ScanLoop) Run(ctx context.Context) error {
	l.logger.Info("scan loop started", slog.Duration("interval", l.interval))

	// Run immediately on start.
	l.runOnce(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scan loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.runOnce(ctx)
		case <-l.trigger:
			l.logger.Info("manual scan trigger received")
			l.runOnce(ctx)
		}
	}
}

func (l *ScanLoop) runOnce(ctx context.Context) {
	report, err := l.scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.reporter.ReportError(ctx, "scan", err)
		return
	}

	if l.recorder != nil {
		if err := l.recorder.Record(ctx, report); err != nil {
			l.reporter.ReportError(ctx, "scan", fmt.Errorf("recording scan %s: %w", report.ID, err))
		}
	}

	for _, ob := range l.observers {
		ob.ObserveScan(report)
	}
}
