package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quellen-dev/dexscan/internal/arbitrage"
	"github.com/quellen-dev/dexscan/internal/config"
	"github.com/quellen-dev/dexscan/internal/discovery"
	"github.com/quellen-dev/dexscan/internal/domain"
	"github.com/quellen-dev/dexscan/internal/feed"
	"github.com/quellen-dev/dexscan/internal/gas"
	"github.com/quellen-dev/dexscan/internal/pipeline"
	"github.com/quellen-dev/dexscan/internal/platform/pricefeed"
	"github.com/quellen-dev/dexscan/internal/report"
	"github.com/quellen-dev/dexscan/internal/server"
	"github.com/quellen-dev/dexscan/internal/server/handler"
	"github.com/quellen-dev/dexscan/internal/server/ws"
	"github.com/quellen-dev/dexscan/internal/service"
)

// ScanMode runs the continuous valuation pipeline: the scan loop, the
// discovery refresh loop, and the reference price feed. The HTTP API starts
// alongside when enabled, so the loop can be watched and triggered remotely.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	core, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	scanTrigger := make(chan struct{}, 1)
	orch := pipeline.NewOrchestrator(a.logger, a.pipelineJobs(deps, core, scanTrigger)...)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, core, scanTrigger)
	}

	return g.Wait()
}

// OnceMode runs a single scan pass and prints the result as a console table.
// The pass goes through the full discovery, quoting, and valuation path, but
// nothing is persisted.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	core, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}

	if err := core.feed.Refresh(ctx); err != nil {
		a.logger.WarnContext(ctx, "reference price refresh failed, using fallback",
			slog.String("error", err.Error()),
		)
	}

	rep, err := core.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("once mode: %w", err)
	}

	report.NewPrinter().PrintScan(rep)
	return nil
}

// DiscoverMode runs one forced discovery pass, persists the refreshed pair
// set, and prints it as a console table.
func (a *App) DiscoverMode(ctx context.Context, deps *Dependencies) error {
	core, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("discover mode: %w", err)
	}

	if err := core.feed.Refresh(ctx); err != nil {
		a.logger.WarnContext(ctx, "reference price refresh failed, using fallback",
			slog.String("error", err.Error()),
		)
	}

	pairs, err := core.pairSvc.Refresh(ctx, true)
	if err != nil {
		return fmt.Errorf("discover mode: %w", err)
	}

	report.NewPrinter().PrintPairs(pairs)
	return nil
}

// ServeMode starts the HTTP and WebSocket API without the scanning loops.
// History comes from the stores. With an RPC source configured, POST
// /api/pairs/refresh still runs discovery on demand; without one the API
// serves the hydrated pair set and refreshes return a configuration error.
// The reference price feed runs so refreshes triggered through the API score
// liquidity against a live price.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	core, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, but serve mode starts the API regardless")
	}

	g, ctx := errgroup.WithContext(ctx)

	orch := pipeline.NewOrchestrator(a.logger, pipeline.JobFunc("refprice", core.feed.Run))
	g.Go(func() error {
		return orch.Run(ctx)
	})

	a.startServer(ctx, g, deps, core, nil)

	return g.Wait()
}

// FullMode runs everything: the scan, discovery, reference price, and archive
// loops plus the HTTP API. The archive loop joins only when the archive
// section is enabled and S3 is configured.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	core, err := a.buildCore(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	scanTrigger := make(chan struct{}, 1)
	orch := pipeline.NewOrchestrator(a.logger, a.pipelineJobs(deps, core, scanTrigger)...)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, core, scanTrigger)
	}

	return g.Wait()
}

// startServer adds the WebSocket hub and HTTP server goroutines to the given
// errgroup and shuts the server down gracefully when the context is
// cancelled. scanTrigger is optional; when non-nil, POST /api/scans/trigger
// requests an immediate scan pass from the scan loop.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, core *coreDeps, scanTrigger chan<- struct{}) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	scansH := handler.NewScansHandler(core.scanSvc, a.logger)
	if scanTrigger != nil {
		scansH = scansH.WithTriggerChannel(scanTrigger)
	}

	statusH := handler.NewStatusHandler(core.status).WithRegistryState(
		func() string { return string(core.registry.State()) },
	)

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger),
		Status:        statusH,
		Pairs:         handler.NewPairsHandler(core.pairSvc, a.logger),
		Opportunities: handler.NewOpportunitiesHandler(core.oppSvc, a.logger),
		Scans:         scansH,
	}
	if deps.Metrics != nil {
		handlers.Metrics = deps.Metrics.Handler()
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// pipelineJobs assembles the background jobs for the scanning modes. The
// archive loop joins only when Wire produced an archiver.
func (a *App) pipelineJobs(deps *Dependencies, core *coreDeps, scanTrigger <-chan struct{}) []pipeline.Job {
	reporter := pipeline.NewReporter(deps.SignalBus, deps.Notifier, a.logger)

	scanDeps := pipeline.ScanLoopDeps{
		Scanner:   core.scanner,
		Observers: []pipeline.ScanObserver{core.status, deps.Metrics},
		Reporter:  reporter,
		Trigger:   scanTrigger,
		Logger:    a.logger,
	}
	if core.scanSvc != nil {
		scanDeps.Recorder = core.scanSvc
	}

	jobs := []pipeline.Job{
		pipeline.NewScanLoop(scanDeps, a.cfg.Scan.Interval.Duration),
		pipeline.NewDiscoveryLoop(pipeline.DiscoveryLoopDeps{
			Pairs:    core.pairSvc,
			Observer: deps.Metrics,
			Reporter: reporter,
			Logger:   a.logger,
		}, a.cfg.Discovery.Interval.Duration),
		pipeline.JobFunc("refprice", core.feed.Run),
	}

	if deps.Archiver != nil {
		jobs = append(jobs, pipeline.NewArchiveLoop(pipeline.ArchiveLoopDeps{
			Archiver: deps.Archiver,
			Observer: deps.Metrics,
			Reporter: reporter,
			Logger:   a.logger,
		}, pipeline.ArchiveLoopConfig{
			RetentionDays: a.cfg.Archive.RetentionDays,
			Interval:      a.cfg.Archive.Interval.Duration,
		}))
	}

	return jobs
}

// coreDeps groups the valuation pipeline objects the run modes share.
type coreDeps struct {
	feed     *feed.RefPriceFeed
	registry *discovery.Registry
	scanner  *arbitrage.Scanner
	pairSvc  *service.PairService
	oppSvc   *service.OpportunityService
	scanSvc  *service.ScanService
	status   *service.StatusTracker
}

// buildCore assembles the scanning core: the reference price feed, the gas
// model, the valuation chain, the discovery engine and registry, the services
// around the stores, and the scanner itself. Modes pick the subset they run.
// The registry is hydrated from the durable store so restarts reuse the last
// discovered set instead of forcing a fresh run.
func (a *App) buildCore(ctx context.Context, deps *Dependencies) (*coreDeps, error) {
	hub, universe, err := a.tokenUniverse()
	if err != nil {
		return nil, err
	}

	refFeed := feed.New(
		pricefeed.NewClient(a.cfg.RefPrice.URL, a.cfg.RefPrice.APIKey),
		feed.Config{
			Asset:    a.cfg.RefPrice.Asset,
			Currency: a.cfg.RefPrice.Currency,
			Fallback: a.cfg.RefPrice.Fallback,
			TTL:      a.cfg.RefPrice.TTL.Duration,
		},
		a.logger,
	).WithOnRefresh(deps.Metrics.SetRefPrice)

	// Without a chain provider (serve mode on a box with no RPC configured)
	// the registry serves whatever the stores hydrated and refreshes report
	// a configuration error.
	var engine *discovery.Engine
	if deps.Provider != nil {
		engine = discovery.NewEngine(deps.Provider, refFeed, discovery.Config{
			Hub:               hub,
			Universe:          universe,
			StableSymbols:     a.cfg.Tokens.Stables,
			MaxPairsPerToken:  a.cfg.Discovery.MaxPairsPerToken,
			MinVenueLiquidity: a.cfg.Discovery.MinVenueLiquidity,
			MaxPriceDeviation: a.cfg.Discovery.MaxPriceDeviation,
			MaxTrackedPairs:   a.cfg.Discovery.MaxTrackedPairs,
			BatchSize:         a.cfg.Discovery.BatchSize,
			BatchDelay:        a.cfg.Discovery.BatchDelay.Duration,
		}, a.logger)
	}

	registry := discovery.NewRegistry(discovery.RegistryDeps{
		Engine: engine,
		Store:  deps.PairStore,
		Mirror: deps.PairMirror,
		Locks:  deps.LockManager,
		Logger: a.logger,
	}, discovery.RegistryConfig{
		Interval: a.cfg.Discovery.Interval.Duration,
		MaxAge:   a.cfg.Discovery.MaxAge.Duration,
		LockTTL:  a.cfg.Discovery.LockTTL.Duration,
	})
	registry.Load(ctx)

	pairSvc := service.NewPairService(service.PairDeps{
		Registry: registry,
		Audit:    deps.AuditStore,
		Bus:      deps.SignalBus,
		Notifier: deps.Notifier,
		Logger:   a.logger,
	})

	var oppSvc *service.OpportunityService
	if deps.OpportunityStore != nil {
		oppSvc = service.NewOpportunityService(service.OpportunityDeps{
			Store:    deps.OpportunityStore,
			Bus:      deps.SignalBus,
			Notifier: deps.Notifier,
			Logger:   a.logger,
		})
	}
	var scanSvc *service.ScanService
	if deps.ScanStore != nil {
		scanSvc = service.NewScanService(service.ScanDeps{
			Store:    deps.ScanStore,
			Audit:    deps.AuditStore,
			Bus:      deps.SignalBus,
			Notifier: deps.Notifier,
			Logger:   a.logger,
		})
	}

	var scanner *arbitrage.Scanner
	if deps.Provider != nil {
		estimator := gas.New(deps.FeeSource, refFeed, gas.Config{
			BaseGasUnits:    a.cfg.Gas.BaseGasUnits,
			DefaultRateGwei: a.cfg.Gas.DefaultRateGwei,
			RefreshInterval: a.cfg.Gas.RefreshInterval.Duration,
		}, a.logger)

		evaluator := arbitrage.NewEvaluator(estimator, arbitrage.EvaluatorConfig{
			MaxPriceImpact: a.cfg.Scan.MaxPriceImpact,
			VenueFees:      a.venueFees(),
			Hub:            hub,
		})
		sizer := arbitrage.NewSizer(evaluator, arbitrage.SizingConfig{
			LadderFractions: a.cfg.Scan.LadderFractions,
			MaxTradeSize:    a.cfg.Scan.MaxTradeSize,
		})

		scannerDeps := arbitrage.ScannerDeps{
			Provider: deps.Provider,
			Quotes:   deps.QuoteCache,
			Sizer:    sizer,
			Pairs:    registry,
			Logger:   a.logger,
		}
		if oppSvc != nil {
			scannerDeps.Sink = oppSvc
		}
		if deps.Metrics != nil {
			scannerDeps.Observer = deps.Metrics
		}
		scanner = arbitrage.NewScanner(scannerDeps, arbitrage.ScannerConfig{
			BatchSize:         a.cfg.Scan.BatchSize,
			BatchDelay:        a.cfg.Scan.BatchDelay.Duration,
			MinNetProfit:      a.cfg.Scan.MinNetProfit,
			MinConfidence:     a.cfg.Scan.MinConfidence,
			MinLiquidityRatio: a.cfg.Scan.MinLiquidityRatio,
			FallbackPairs:     a.fallbackPairs(universe),
		})
	}

	status := service.NewStatusTracker(a.cfg.Mode,
		func() int { return len(registry.Snapshot()) },
		refFeed.Price,
	)

	return &coreDeps{
		feed:     refFeed,
		registry: registry,
		scanner:  scanner,
		pairSvc:  pairSvc,
		oppSvc:   oppSvc,
		scanSvc:  scanSvc,
		status:   status,
	}, nil
}

// tokenUniverse resolves the configured token list into domain tokens and
// validates that the hub token is among them.
func (a *App) tokenUniverse() (domain.Token, []domain.Token, error) {
	universe := make([]domain.Token, 0, len(a.cfg.Tokens.Known))
	for _, tc := range a.cfg.Tokens.Known {
		universe = append(universe, toToken(tc))
	}
	hubCfg, ok := a.cfg.Tokens.Token(a.cfg.Tokens.Hub)
	if !ok {
		return domain.Token{}, nil, fmt.Errorf("hub token %q is not in tokens.known: %w",
			a.cfg.Tokens.Hub, domain.ErrConfiguration)
	}
	return toToken(hubCfg), universe, nil
}

func toToken(tc config.TokenConfig) domain.Token {
	return domain.Token{
		Symbol:   tc.Symbol,
		Address:  domain.NormalizeAddress(tc.Address),
		Decimals: uint8(tc.Decimals),
		Tier:     domain.PriorityTier(tc.Tier),
	}
}

// venueFees maps each configured venue to its pool fee fraction.
func (a *App) venueFees() map[string]float64 {
	fees := make(map[string]float64, len(a.cfg.Venues))
	for name, v := range a.cfg.Venues {
		fees[name] = v.FeeRate()
	}
	return fees
}

// fallbackPairs parses scan.fallback_pairs entries like "WETH/USDC" against
// the known token list. Malformed entries and unknown symbols are logged and
// skipped.
func (a *App) fallbackPairs(universe []domain.Token) []domain.TokenPair {
	bySymbol := make(map[string]domain.Token, len(universe))
	for _, t := range universe {
		bySymbol[t.Symbol] = t
	}

	pairs := make([]domain.TokenPair, 0, len(a.cfg.Scan.FallbackPairs))
	for _, raw := range a.cfg.Scan.FallbackPairs {
		symA, symB, ok := strings.Cut(raw, "/")
		if !ok {
			a.logger.Warn("malformed fallback pair, want A/B", slog.String("pair", raw))
			continue
		}
		tokA, okA := bySymbol[strings.TrimSpace(symA)]
		tokB, okB := bySymbol[strings.TrimSpace(symB)]
		if !okA || !okB {
			a.logger.Warn("fallback pair references unknown token", slog.String("pair", raw))
			continue
		}
		pairs = append(pairs, domain.TokenPair{TokenA: tokA, TokenB: tokB})
	}
	return pairs
}
