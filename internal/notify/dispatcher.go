package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// DispatcherConfig tunes alert selection.
type DispatcherConfig struct {
	Events       []string      // subscribed event names; empty subscribes to all
	MinNetProfit float64       // opportunity alert floor, reference units
	DedupWindow  time.Duration // repeat suppression per alert key
}

// Dispatcher turns scan pipeline results into operator alerts. Alerts are
// fire and forget: delivery failures are logged, never returned, so a dead
// webhook cannot slow a scan down.
type Dispatcher struct {
	notifier *Notifier
	cfg      DispatcherConfig
	dedup    *dedup
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher fronting the given senders.
func NewDispatcher(senders []Sender, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: NewNotifier(senders, cfg.Events, logger),
		cfg:      cfg,
		dedup:    newDedup(cfg.DedupWindow),
		logger:   logger.With(slog.String("component", "notify_dispatcher")),
	}
}

// NotifyOpportunity alerts on a single evaluated opportunity. Opportunities
// below the configured profit floor are skipped, and repeats for the same
// pair and direction inside the dedup window are suppressed.
func (d *Dispatcher) NotifyOpportunity(ctx context.Context, opp domain.Opportunity) {
	if opp.NetProfit < d.cfg.MinNetProfit {
		return
	}

	key := strings.Join([]string{"opp", opp.Pair.Key(), opp.BuyVenue, opp.SellVenue}, ":")
	if d.dedup.suppress(key) {
		d.logger.DebugContext(ctx, "opportunity alert suppressed",
			slog.String("pair", opp.Pair.Name()))
		return
	}

	title := fmt.Sprintf("Arbitrage: %s", opp.Pair.Name())
	message := fmt.Sprintf(
		"Buy %s @ %.6f, sell %s @ %.6f\nSize %.4f %s\nNet profit %.4f (%.2f%%), gas %.4f\nConfidence %.2f",
		opp.BuyVenue, opp.BuyPrice, opp.SellVenue, opp.SellPrice,
		opp.TradeAmount, opp.Pair.TokenA.Symbol,
		opp.NetProfit, opp.ProfitMarginPct(), opp.GasCost,
		opp.Confidence,
	)
	d.send(ctx, domain.EventOpportunityFound, title, message)
}

// NotifyScan alerts on a completed scan pass. One alert per dedup window.
func (d *Dispatcher) NotifyScan(ctx context.Context, report domain.ScanReport) {
	if d.dedup.suppress("scan") {
		return
	}

	title := "Scan completed"
	message := fmt.Sprintf(
		"%d pairs scanned (%d skipped), %d opportunities kept\nTop net profit %.4f\nTook %s",
		report.PairsScanned, report.PairsSkipped, len(report.Opportunities),
		report.TopNetProfit, report.Duration.Round(time.Millisecond),
	)
	d.send(ctx, domain.EventScanCompleted, title, message)
}

// NotifyDiscovery alerts on a finished discovery run.
func (d *Dispatcher) NotifyDiscovery(ctx context.Context, pairs []domain.DiscoveredPair) {
	if d.dedup.suppress("discovery") {
		return
	}

	title := "Pair discovery completed"
	message := fmt.Sprintf("%d pairs tracked", len(pairs))
	if len(pairs) > 0 {
		message += fmt.Sprintf("\nTop ranked: %s (score %.2f)", pairs[0].Pair.Name(), pairs[0].Score)
	}
	d.send(ctx, domain.EventDiscoveryCompleted, title, message)
}

// NotifyError alerts on a component failure. Repeats from the same component
// inside the dedup window are suppressed.
func (d *Dispatcher) NotifyError(ctx context.Context, component string, err error) {
	if err == nil {
		return
	}
	if d.dedup.suppress("error:" + component) {
		return
	}

	title := fmt.Sprintf("Failure in %s", component)
	d.send(ctx, domain.EventError, title, err.Error())
}

func (d *Dispatcher) send(ctx context.Context, event, title, message string) {
	if err := d.notifier.Notify(ctx, event, title, message); err != nil {
		d.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
