package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// PairSource supplies the active pair set for a scan pass. The discovery
// registry implements this; a fixed fallback list covers the cold start.
type PairSource interface {
	ActivePairs(ctx context.Context) ([]domain.DiscoveredPair, error)
}

// ScannerConfig tunes one scan pass.
type ScannerConfig struct {
	BatchSize         int           // pairs evaluated concurrently; default 5
	BatchDelay        time.Duration // pause between batches; default 1s
	MinNetProfit      float64       // global filter, reference units
	MinConfidence     float64       // global filter, [0,1]
	MinLiquidityRatio float64       // global filter on min/max venue liquidity
	FallbackPairs     []domain.TokenPair
}

func (c ScannerConfig) withDefaults() ScannerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = time.Second
	}
	return c
}

// Scanner drives one scanning pass: active pairs in fixed-size batches,
// concurrent quote fetches within a batch, a ladder search per pair, then
// global filtering and deterministic ranking of everything found.
type Scanner struct {
	provider domain.QuoteProvider
	quotes   domain.QuoteCache // optional short-TTL cache in front of the provider
	sizer    *Sizer
	pairs    PairSource // optional; fallback list used when nil or empty
	sink     domain.OpportunitySink
	observer QuoteObserver
	cfg      ScannerConfig
	venues   []string
	logger   *slog.Logger
	now      func() time.Time
}

// QuoteObserver receives per-venue telemetry for provider fetches. Cache hits
// are not reported.
type QuoteObserver interface {
	RecordProviderError(venue string)
	ObserveQuoteLatency(venue string, d time.Duration)
}

// ScannerDeps bundles the collaborators for NewScanner.
type ScannerDeps struct {
	Provider domain.QuoteProvider
	Quotes   domain.QuoteCache
	Sizer    *Sizer
	Pairs    PairSource
	Sink     domain.OpportunitySink
	Observer QuoteObserver
	Logger   *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(deps ScannerDeps, cfg ScannerConfig) *Scanner {
	names := make([]string, 0, 2)
	for _, v := range deps.Provider.Venues() {
		names = append(names, v.Name)
	}
	return &Scanner{
		provider: deps.Provider,
		quotes:   deps.Quotes,
		sizer:    deps.Sizer,
		pairs:    deps.Pairs,
		sink:     deps.Sink,
		observer: deps.Observer,
		cfg:      cfg.withDefaults(),
		venues:   names,
		logger:   deps.Logger.With(slog.String("component", "scanner")),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

type pairResult struct {
	opp       *domain.Opportunity
	evaluated int
	rejected  int
	skipped   bool
}

// Scan runs one full pass and returns its report. A failure on one pair is
// logged and skipped, never aborting the batch or the scan. Cancellation is
// honored between batches: the report then carries only the opportunities
// from fully completed batches, alongside ctx.Err().
func (s *Scanner) Scan(ctx context.Context) (domain.ScanReport, error) {
	report := domain.ScanReport{
		ID:        uuid.NewString(),
		StartedAt: s.now().UTC(),
	}
	if len(s.venues) < 2 {
		return report, fmt.Errorf("arbitrage: scan needs at least two venues: %w", domain.ErrConfiguration)
	}

	pairs := s.activePairs(ctx)
	if len(pairs) == 0 {
		s.logger.WarnContext(ctx, "no pairs to scan")
		report.FinishedAt = s.now().UTC()
		return report, nil
	}

	var found []domain.Opportunity
	aborted := false

	for start := 0; start < len(pairs); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]

		results := make([]pairResult, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, pair := range batch {
			g.Go(func() error {
				results[i] = s.scanPair(gctx, pair)
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			// Results of the interrupted batch are discarded wholesale; a
			// partially evaluated pair must never surface.
			aborted = true
			break
		}

		for _, r := range results {
			report.PairsScanned++
			report.Evaluated += r.evaluated
			if r.skipped {
				report.PairsSkipped++
			}
			if r.opp != nil {
				opp := *r.opp
				opp.ScanID = report.ID
				found = append(found, opp)
			}
		}

		if end < len(pairs) {
			if err := s.pause(ctx); err != nil {
				aborted = true
				break
			}
		}
	}

	report.Found = len(found)
	report.Opportunities = s.rank(s.filter(found))
	if len(report.Opportunities) > 0 {
		report.TopNetProfit = report.Opportunities[0].NetProfit
	}
	report.FinishedAt = s.now().UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)

	s.deliver(ctx, report.Opportunities)

	s.logger.InfoContext(ctx, "scan pass finished",
		slog.String("scan_id", report.ID),
		slog.Int("pairs_scanned", report.PairsScanned),
		slog.Int("pairs_skipped", report.PairsSkipped),
		slog.Int("found", report.Found),
		slog.Int("kept", len(report.Opportunities)),
		slog.Duration("duration", report.Duration),
	)

	if aborted {
		return report, ctx.Err()
	}
	return report, nil
}

// activePairs resolves the pair set for this pass: discovery output when
// available, otherwise the configured fallback list.
func (s *Scanner) activePairs(ctx context.Context) []domain.TokenPair {
	if s.pairs != nil {
		discovered, err := s.pairs.ActivePairs(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "pair source failed, using fallback list",
				slog.String("error", err.Error()),
			)
		} else if len(discovered) > 0 {
			out := make([]domain.TokenPair, len(discovered))
			for i, d := range discovered {
				out[i] = d.Pair
			}
			return out
		}
	}
	return s.cfg.FallbackPairs
}

// scanPair fetches both venue quotes and runs the ladder search for one pair.
func (s *Scanner) scanPair(ctx context.Context, pair domain.TokenPair) pairResult {
	qa, err := s.quoteFor(ctx, pair, s.venues[0])
	if err != nil {
		return s.skip(ctx, pair, s.venues[0], err)
	}
	qb, err := s.quoteFor(ctx, pair, s.venues[1])
	if err != nil {
		return s.skip(ctx, pair, s.venues[1], err)
	}

	if s.cfg.MinLiquidityRatio > 0 && liquidityRatio(qa, qb) < s.cfg.MinLiquidityRatio {
		return pairResult{}
	}

	res, err := s.sizer.Search(ctx, pair, qa, qb)
	if err != nil {
		return s.skip(ctx, pair, "", err)
	}

	out := pairResult{evaluated: res.Evaluated, rejected: res.Rejected}
	if res.Found {
		opp := res.Best
		out.opp = &opp
	}
	return out
}

func (s *Scanner) skip(ctx context.Context, pair domain.TokenPair, venue string, err error) pairResult {
	switch {
	case domain.IsDataUnavailable(err):
		s.logger.DebugContext(ctx, "pair has no usable quote",
			slog.String("pair", pair.Name()),
			slog.String("venue", venue),
		)
	case ctx.Err() != nil:
		// Cancellation surfaces through the provider; the batch result is
		// discarded by the caller.
	default:
		s.logger.WarnContext(ctx, "pair skipped for this cycle",
			slog.String("pair", pair.Name()),
			slog.String("venue", venue),
			slog.String("error", err.Error()),
		)
	}
	return pairResult{skipped: true}
}

// quoteFor consults the short-TTL quote cache before the provider. Cache
// writes are best effort.
func (s *Scanner) quoteFor(ctx context.Context, pair domain.TokenPair, venue string) (domain.VenueQuote, error) {
	if s.quotes != nil {
		if q, err := s.quotes.GetQuote(ctx, venue, pair.Key()); err == nil {
			return q, nil
		}
	}

	start := time.Now()
	q, err := s.provider.GetQuote(ctx, pair, venue)
	if s.observer != nil {
		s.observer.ObserveQuoteLatency(venue, time.Since(start))
	}
	if err != nil {
		if s.observer != nil {
			s.observer.RecordProviderError(venue)
		}
		return domain.VenueQuote{}, err
	}

	if s.quotes != nil {
		if err := s.quotes.SetQuote(ctx, q); err != nil {
			s.logger.DebugContext(ctx, "quote cache write failed",
				slog.String("venue", venue),
				slog.String("pair", pair.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
	return q, nil
}

func (s *Scanner) pause(ctx context.Context) error {
	t := time.NewTimer(s.cfg.BatchDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// filter applies the global opportunity filters.
func (s *Scanner) filter(opps []domain.Opportunity) []domain.Opportunity {
	kept := opps[:0]
	for _, o := range opps {
		if o.NetProfit < s.cfg.MinNetProfit {
			continue
		}
		if o.Confidence < s.cfg.MinConfidence {
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

// rank orders deterministically: net profit descending, then confidence
// descending, then pair identity.
func (s *Scanner) rank(opps []domain.Opportunity) []domain.Opportunity {
	sort.Slice(opps, func(i, j int) bool {
		if opps[i].NetProfit != opps[j].NetProfit {
			return opps[i].NetProfit > opps[j].NetProfit
		}
		if opps[i].Confidence != opps[j].Confidence {
			return opps[i].Confidence > opps[j].Confidence
		}
		return opps[i].Pair.Key() < opps[j].Pair.Key()
	})
	return opps
}

// deliver hands the kept opportunities to the sink. Sink failures never
// abort or delay the scan.
func (s *Scanner) deliver(ctx context.Context, opps []domain.Opportunity) {
	if s.sink == nil {
		return
	}
	for _, o := range opps {
		if err := s.sink.Accept(ctx, o); err != nil {
			s.logger.WarnContext(ctx, "opportunity sink failed",
				slog.String("opportunity_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func liquidityRatio(qa, qb domain.VenueQuote) float64 {
	lo, hi := qa.Liquidity, qb.Liquidity
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi <= 0 {
		return 0
	}
	return lo / hi
}
