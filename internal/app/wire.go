package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/quellen-dev/dexscan/internal/blob/s3"
	"github.com/quellen-dev/dexscan/internal/cache/redis"
	"github.com/quellen-dev/dexscan/internal/config"
	"github.com/quellen-dev/dexscan/internal/crypto"
	"github.com/quellen-dev/dexscan/internal/domain"
	"github.com/quellen-dev/dexscan/internal/metrics"
	"github.com/quellen-dev/dexscan/internal/notify"
	"github.com/quellen-dev/dexscan/internal/store/postgres"
	"github.com/quellen-dev/dexscan/internal/venue/univ2"
)

// Dependencies bundles every shared dependency the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Chain access
	Provider  *univ2.Provider
	FeeSource *univ2.FeeSource

	// Stores
	PairStore        domain.PairCacheStore
	OpportunityStore domain.OpportunityStore
	ScanStore        domain.ScanStore
	AuditStore       domain.AuditStore

	// Caches
	QuoteCache  domain.QuoteCache
	TokenCache  domain.TokenMetaCache
	PairMirror  domain.PairRegistryCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications and observability
	Notifier *notify.Dispatcher
	Metrics  *metrics.Metrics
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "scan", "discover", "serve", "full":
		return true
	default:
		return false
	}
}

// needsChain returns true for modes that quote pools over RPC on every run.
// Serve can run as a pure history API without a node, so for it the chain is
// wired only when an RPC source is actually configured.
func needsChain(mode string) bool {
	switch mode {
	case "scan", "once", "discover", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that offload aged rows to object storage.
func needsS3(mode string) bool {
	return mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PairStore = postgres.NewPairStore(pool)
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.ScanStore = postgres.NewScanStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
	deps.TokenCache = redis.NewTokenMetaCache(redisClient)
	deps.PairMirror = redis.NewPairRegistryCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// Seed the shared token metadata cache with the configured universe so
	// any replica resolves known decimals without an RPC call.
	for _, tc := range cfg.Tokens.Known {
		if err := deps.TokenCache.SetToken(ctx, toToken(tc)); err != nil {
			logger.DebugContext(ctx, "token metadata seed failed",
				slog.String("symbol", tc.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	// --- Ethereum RPC and venue provider ---
	if needsChain(mode) || cfg.Chain.RPCURL != "" || cfg.Chain.EncryptedRPCPath != "" {
		rpcURL, err := crypto.LoadSecret(crypto.SecretConfig{
			Raw:           cfg.Chain.RPCURL,
			EncryptedPath: cfg.Chain.EncryptedRPCPath,
			Password:      cfg.Chain.SecretPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: rpc url: %w", err)
		}
		ethClient, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: dial rpc: %w", err)
		}
		closers = append(closers, ethClient.Close)

		provider, err := univ2.NewProvider(ethClient, deps.TokenCache, univ2.Config{
			Venues: venueList(cfg.Venues),
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: venue provider: %w", err)
		}
		deps.Provider = provider
		deps.FeeSource = univ2.NewFeeSource(ethClient)
	}

	// --- S3 blob storage (only when the mode archives and it is enabled) ---
	if needsS3(mode) && cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)

		// Archiver needs the row stores; those exist because every
		// archiving mode also wires Postgres.
		if deps.OpportunityStore != nil && deps.ScanStore != nil {
			deps.Archiver = s3blob.NewArchiver(s3blob.ArchiverDeps{
				Writer:        deps.BlobWriter,
				Reader:        deps.BlobReader,
				Opportunities: deps.OpportunityStore,
				ScanRuns:      deps.ScanStore,
				Audit:         deps.AuditStore,
				Logger:        logger,
			}, s3blob.ArchiverConfig{
				BatchSize: cfg.Archive.BatchSize,
				Prefix:    cfg.S3.Prefix,
			})
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewDispatcher(senders, notify.DispatcherConfig{
		Events:       cfg.Notify.Events,
		MinNetProfit: cfg.Notify.MinNetProfit,
		DedupWindow:  cfg.Notify.DedupWindow.Duration,
	}, logger)

	// --- Metrics ---
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.NewMetrics()
	}

	return deps, cleanup, nil
}

// venueList converts the configured venue map into a sorted slice. Sorting
// keeps the venue order stable across restarts, so quote and report fields
// line up between runs.
func venueList(venues map[string]config.VenueConfig) []domain.Venue {
	names := make([]string, 0, len(venues))
	for name := range venues {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.Venue, 0, len(names))
	for _, name := range names {
		v := venues[name]
		out = append(out, domain.Venue{
			Name:    name,
			Factory: v.Factory,
			Router:  v.Router,
			FeeRate: v.FeeRate(),
		})
	}
	return out
}
