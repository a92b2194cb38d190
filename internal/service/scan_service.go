package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// ScanService records completed scan passes and serves scan history queries.
type ScanService struct {
	store    domain.ScanStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
}

// ScanDeps bundles the collaborators for NewScanService. Everything but
// Logger is optional.
type ScanDeps struct {
	Store    domain.ScanStore
	Audit    domain.AuditStore
	Bus      domain.SignalBus
	Notifier Notifier
	Logger   *slog.Logger
}

// NewScanService creates a ScanService.
func NewScanService(deps ScanDeps) *ScanService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanService{
		store:    deps.Store,
		audit:    deps.Audit,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		logger:   logger.With(slog.String("component", "scan_service")),
	}
}

// Record persists the run summary and fans the completion out to the audit
// log, the bus, and the notifier. Only the store write can fail the call.
func (s *ScanService) Record(ctx context.Context, report domain.ScanReport) error {
	if s.store != nil {
		if err := s.store.Insert(ctx, report); err != nil {
			return fmt.Errorf("service: insert scan run %s: %w", report.ID, err)
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, domain.EventScanCompleted, map[string]any{
			"scan_id":        report.ID,
			"pairs_scanned":  report.PairsScanned,
			"pairs_skipped":  report.PairsSkipped,
			"evaluated":      report.Evaluated,
			"found":          report.Found,
			"kept":           len(report.Opportunities),
			"top_net_profit": report.TopNetProfit,
			"duration_ms":    report.Duration.Milliseconds(),
		}); err != nil {
			s.logger.WarnContext(ctx, "audit scan run failed",
				slog.String("scan_id", report.ID), slog.String("error", err.Error()))
		}
	}

	s.publish(ctx, report)

	if s.notifier != nil {
		s.notifier.NotifyScan(ctx, report)
	}
	return nil
}

func (s *ScanService) publish(ctx context.Context, report domain.ScanReport) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.NewScanEvent(report))
	if err != nil {
		s.logger.WarnContext(ctx, "marshal scan event failed",
			slog.String("scan_id", report.ID), slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelScans, payload); err != nil {
		s.logger.WarnContext(ctx, "publish scan event failed",
			slog.String("scan_id", report.ID), slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, domain.ChannelScans, payload); err != nil {
		s.logger.WarnContext(ctx, "append scan stream failed",
			slog.String("scan_id", report.ID), slog.String("error", err.Error()))
	}
}

// Recent returns the latest run summaries, newest first.
func (s *ScanService) Recent(ctx context.Context, limit int) ([]domain.ScanReport, error) {
	if s.store == nil {
		return nil, domain.ErrDataUnavailable
	}
	reports, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service: list recent scans: %w", err)
	}
	return reports, nil
}

// ByID returns one run with its opportunities stitched in.
func (s *ScanService) ByID(ctx context.Context, id string) (domain.ScanReport, error) {
	if s.store == nil {
		return domain.ScanReport{}, domain.ErrDataUnavailable
	}
	report, err := s.store.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.ScanReport{}, err
		}
		return domain.ScanReport{}, fmt.Errorf("service: get scan run %s: %w", id, err)
	}
	return report, nil
}
