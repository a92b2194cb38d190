package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

var (
	tokWETH = domain.Token{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18, Tier: domain.TierHigh}
	tokUSDC = domain.Token{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6, Tier: domain.TierHigh}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleOpportunity(id string) domain.Opportunity {
	return domain.Opportunity{
		ID:          id,
		ScanID:      "scan-1",
		Pair:        domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDC},
		BuyVenue:    "uniswap",
		SellVenue:   "sushiswap",
		TradeAmount: 10,
		BuyPrice:    2000,
		SellPrice:   2100,
		TokensOut:   19950,
		GrossProfit: 0.45,
		GasCost:     0.02,
		NetProfit:   0.43,
		BuyImpact:   0.004,
		SellImpact:  0.004,
		Confidence:  0.7,
		BlockNumber: 19_000_000,
		DetectedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func sampleReport(id string, opps ...domain.Opportunity) domain.ScanReport {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	report := domain.ScanReport{
		ID:            id,
		StartedAt:     started,
		FinishedAt:    started.Add(3 * time.Second),
		Duration:      3 * time.Second,
		PairsScanned:  5,
		PairsSkipped:  1,
		Evaluated:     20,
		Found:         len(opps),
		Opportunities: opps,
	}
	if len(opps) > 0 {
		report.TopNetProfit = opps[0].NetProfit
	}
	return report
}

type memOppStore struct {
	mu         sync.Mutex
	opps       []domain.Opportunity
	failInsert error
}

func (m *memOppStore) Insert(_ context.Context, opp domain.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return m.failInsert
	}
	m.opps = append(m.opps, opp)
	return nil
}

func (m *memOppStore) InsertBatch(ctx context.Context, opps []domain.Opportunity) error {
	for _, opp := range opps {
		if err := m.Insert(ctx, opp); err != nil {
			return err
		}
	}
	return nil
}

func (m *memOppStore) GetByID(_ context.Context, id string) (domain.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, opp := range m.opps {
		if opp.ID == id {
			return opp, nil
		}
	}
	return domain.Opportunity{}, domain.ErrNotFound
}

func (m *memOppStore) ListRecent(_ context.Context, limit int) ([]domain.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Opportunity, 0, len(m.opps))
	for i := len(m.opps) - 1; i >= 0; i-- {
		out = append(out, m.opps[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memOppStore) ListByPair(_ context.Context, pairKey string, _ domain.ListOpts) ([]domain.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Opportunity
	for _, opp := range m.opps {
		if opp.Pair.Key() == pairKey {
			out = append(out, opp)
		}
	}
	return out, nil
}

func (m *memOppStore) ListBefore(_ context.Context, before time.Time) ([]domain.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Opportunity
	for _, opp := range m.opps {
		if opp.DetectedAt.Before(before) {
			out = append(out, opp)
		}
	}
	return out, nil
}

func (m *memOppStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.Opportunity
	var deleted int64
	for _, opp := range m.opps {
		if opp.DetectedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, opp)
	}
	m.opps = kept
	return deleted, nil
}

type memScanStore struct {
	mu         sync.Mutex
	reports    []domain.ScanReport
	failInsert error
}

func (m *memScanStore) Insert(_ context.Context, report domain.ScanReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return m.failInsert
	}
	m.reports = append(m.reports, report)
	return nil
}

func (m *memScanStore) GetByID(_ context.Context, id string) (domain.ScanReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.ScanReport{}, domain.ErrNotFound
}

func (m *memScanStore) ListRecent(_ context.Context, limit int) ([]domain.ScanReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ScanReport, 0, len(m.reports))
	for i := len(m.reports) - 1; i >= 0; i-- {
		out = append(out, m.reports[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memScanStore) ListBefore(_ context.Context, before time.Time) ([]domain.ScanReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScanReport
	for _, r := range m.reports {
		if r.StartedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memScanStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.ScanReport
	var deleted int64
	for _, r := range m.reports {
		if r.StartedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.reports = kept
	return deleted, nil
}

type auditRecord struct {
	event  string
	detail map[string]any
}

type memAudit struct {
	mu      sync.Mutex
	entries []auditRecord
	failLog error
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLog != nil {
		return m.failLog
	}
	m.entries = append(m.entries, auditRecord{event: event, detail: detail})
	return nil
}

func (m *memAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, 0, len(m.entries))
	for i, rec := range m.entries {
		out = append(out, domain.AuditEntry{ID: int64(i + 1), Event: rec.event, Detail: rec.detail})
	}
	return out, nil
}

type memBus struct {
	mu      sync.Mutex
	pubs    map[string][][]byte
	streams map[string][][]byte
	failPub error
}

func newMemBus() *memBus {
	return &memBus{pubs: make(map[string][][]byte), streams: make(map[string][][]byte)}
}

func (m *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPub != nil {
		return m.failPub
	}
	m.pubs[channel] = append(m.pubs[channel], payload)
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (m *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[stream] = append(m.streams[stream], payload)
	return nil
}

func (m *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (m *memBus) published(channel string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.pubs[channel]...)
}

func (m *memBus) streamed(stream string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.streams[stream]...)
}

type memNotifier struct {
	mu            sync.Mutex
	oppCalls      int
	scanCalls     int
	discoCalls    int
	errorCalls    int
	lastOpp       domain.Opportunity
	lastReport    domain.ScanReport
	lastPairCount int
}

func (m *memNotifier) NotifyOpportunity(_ context.Context, opp domain.Opportunity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oppCalls++
	m.lastOpp = opp
}

func (m *memNotifier) NotifyScan(_ context.Context, report domain.ScanReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++
	m.lastReport = report
}

func (m *memNotifier) NotifyDiscovery(_ context.Context, pairs []domain.DiscoveredPair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoCalls++
	m.lastPairCount = len(pairs)
}

func (m *memNotifier) NotifyError(context.Context, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCalls++
}
