// Package metrics exposes the scanner's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// Metrics holds the scanner's collectors on a private registry. All methods
// are nil-receiver safe so callers can keep a single code path whether or
// not metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal       prometheus.Counter
	ScanDuration     prometheus.Histogram
	PairsScanned     prometheus.Counter
	PairsSkipped     prometheus.Counter
	Opportunities    prometheus.Counter
	NetProfit        prometheus.Histogram
	ActivePairs      prometheus.Gauge
	RefPrice         prometheus.Gauge
	DiscoveryRuns    prometheus.Counter
	DiscoveryDur     prometheus.Histogram
	ProviderErrors   *prometheus.CounterVec
	QuoteLatency     *prometheus.HistogramVec
	ArchivedRows     *prometheus.CounterVec
	LastScanUnixtime prometheus.Gauge
}

// NewMetrics builds the collector set on a fresh registry, alongside the
// standard Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	const namespace = "dexscan"

	return &Metrics{
		registry: registry,

		ScansTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of completed scan passes",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wall time of one scan pass",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PairsScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "pairs_scanned_total",
			Help:      "Total pairs evaluated across all scan passes",
		}),
		PairsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "pairs_skipped_total",
			Help:      "Total pairs skipped for missing or failed quotes",
		}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "opportunities_total",
			Help:      "Total opportunities that survived the global filters",
		}),
		NetProfit: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "opportunity_net_profit",
			Help:      "Net profit of kept opportunities, in trade-asset units",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ActivePairs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "active_pairs",
			Help:      "Pairs currently in the active scan set",
		}),
		RefPrice: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reference_price_usd",
			Help:      "Current gas reference asset price in USD",
		}),
		DiscoveryRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Total completed discovery runs",
		}),
		DiscoveryDur: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "duration_seconds",
			Help:      "Wall time of one discovery run",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "provider_errors_total",
			Help:      "Quote provider failures by venue",
		}, []string{"venue"}),
		QuoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "quote_latency_seconds",
			Help:      "Venue quote fetch latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"venue"}),
		ArchivedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "rows_total",
			Help:      "Rows moved to object storage by table",
		}, []string{"table"}),
		LastScanUnixtime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "last_run_timestamp",
			Help:      "Unix timestamp of the last completed scan pass",
		}),
	}
}

// Handler returns the exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScan records the counters derived from one scan report.
func (m *Metrics) ObserveScan(report domain.ScanReport) {
	if m == nil {
		return
	}
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(report.Duration.Seconds())
	m.PairsScanned.Add(float64(report.PairsScanned))
	m.PairsSkipped.Add(float64(report.PairsSkipped))
	m.Opportunities.Add(float64(len(report.Opportunities)))
	m.LastScanUnixtime.Set(float64(report.FinishedAt.Unix()))
	for _, opp := range report.Opportunities {
		m.NetProfit.Observe(opp.NetProfit)
	}
}

// ObserveDiscovery records one discovery run.
func (m *Metrics) ObserveDiscovery(pairs int, d time.Duration) {
	if m == nil {
		return
	}
	m.DiscoveryRuns.Inc()
	m.DiscoveryDur.Observe(d.Seconds())
	m.ActivePairs.Set(float64(pairs))
}

// SetActivePairs updates the active pair gauge outside a discovery run.
func (m *Metrics) SetActivePairs(n int) {
	if m == nil {
		return
	}
	m.ActivePairs.Set(float64(n))
}

// SetRefPrice updates the reference price gauge.
func (m *Metrics) SetRefPrice(price float64) {
	if m == nil {
		return
	}
	m.RefPrice.Set(price)
}

// RecordProviderError counts a quote failure for the venue.
func (m *Metrics) RecordProviderError(venue string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(venue).Inc()
}

// ObserveQuoteLatency records one quote fetch for the venue.
func (m *Metrics) ObserveQuoteLatency(venue string, d time.Duration) {
	if m == nil {
		return
	}
	m.QuoteLatency.WithLabelValues(venue).Observe(d.Seconds())
}

// RecordArchived counts rows moved to cold storage for the table.
func (m *Metrics) RecordArchived(table string, rows int64) {
	if m == nil {
		return
	}
	m.ArchivedRows.WithLabelValues(table).Add(float64(rows))
}
