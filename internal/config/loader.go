package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEXSCAN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "DEXSCAN_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "DEXSCAN_CHAIN_ID")
	setStr(&cfg.Chain.EncryptedRPCPath, "DEXSCAN_CHAIN_ENCRYPTED_RPC_PATH")
	setStr(&cfg.Chain.SecretPassword, "DEXSCAN_CHAIN_SECRET_PASSWORD")

	// ── Discovery ──
	setInt(&cfg.Discovery.MaxPairsPerToken, "DEXSCAN_DISCOVERY_MAX_PAIRS_PER_TOKEN")
	setFloat64(&cfg.Discovery.MinVenueLiquidity, "DEXSCAN_DISCOVERY_MIN_VENUE_LIQUIDITY")
	setFloat64(&cfg.Discovery.MaxPriceDeviation, "DEXSCAN_DISCOVERY_MAX_PRICE_DEVIATION")
	setInt(&cfg.Discovery.MaxTrackedPairs, "DEXSCAN_DISCOVERY_MAX_TRACKED_PAIRS")
	setInt(&cfg.Discovery.BatchSize, "DEXSCAN_DISCOVERY_BATCH_SIZE")
	setDuration(&cfg.Discovery.BatchDelay, "DEXSCAN_DISCOVERY_BATCH_DELAY")
	setDuration(&cfg.Discovery.Interval, "DEXSCAN_DISCOVERY_INTERVAL")
	setDuration(&cfg.Discovery.MaxAge, "DEXSCAN_DISCOVERY_MAX_AGE")
	setDuration(&cfg.Discovery.LockTTL, "DEXSCAN_DISCOVERY_LOCK_TTL")

	// ── Scan ──
	setDuration(&cfg.Scan.Interval, "DEXSCAN_SCAN_INTERVAL")
	setInt(&cfg.Scan.BatchSize, "DEXSCAN_SCAN_BATCH_SIZE")
	setDuration(&cfg.Scan.BatchDelay, "DEXSCAN_SCAN_BATCH_DELAY")
	setFloat64(&cfg.Scan.MinNetProfit, "DEXSCAN_SCAN_MIN_NET_PROFIT")
	setFloat64(&cfg.Scan.MinConfidence, "DEXSCAN_SCAN_MIN_CONFIDENCE")
	setFloat64(&cfg.Scan.MinLiquidityRatio, "DEXSCAN_SCAN_MIN_LIQUIDITY_RATIO")
	setFloat64(&cfg.Scan.MaxPriceImpact, "DEXSCAN_SCAN_MAX_PRICE_IMPACT")
	setFloat64(&cfg.Scan.MaxTradeSize, "DEXSCAN_SCAN_MAX_TRADE_SIZE")
	setFloat64Slice(&cfg.Scan.LadderFractions, "DEXSCAN_SCAN_LADDER_FRACTIONS")
	setStringSlice(&cfg.Scan.FallbackPairs, "DEXSCAN_SCAN_FALLBACK_PAIRS")

	// ── Gas ──
	setFloat64(&cfg.Gas.BaseGasUnits, "DEXSCAN_GAS_BASE_GAS_UNITS")
	setDuration(&cfg.Gas.RefreshInterval, "DEXSCAN_GAS_REFRESH_INTERVAL")
	setFloat64(&cfg.Gas.DefaultRateGwei, "DEXSCAN_GAS_DEFAULT_RATE_GWEI")

	// ── Reference price ──
	setStr(&cfg.RefPrice.URL, "DEXSCAN_REFPRICE_URL")
	setStr(&cfg.RefPrice.APIKey, "DEXSCAN_REFPRICE_API_KEY")
	setStr(&cfg.RefPrice.Asset, "DEXSCAN_REFPRICE_ASSET")
	setStr(&cfg.RefPrice.Currency, "DEXSCAN_REFPRICE_CURRENCY")
	setFloat64(&cfg.RefPrice.Fallback, "DEXSCAN_REFPRICE_FALLBACK")
	setDuration(&cfg.RefPrice.TTL, "DEXSCAN_REFPRICE_TTL")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DEXSCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXSCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXSCAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXSCAN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXSCAN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXSCAN_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "DEXSCAN_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.QuoteTTL, "DEXSCAN_REDIS_QUOTE_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEXSCAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DEXSCAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXSCAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXSCAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXSCAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXSCAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXSCAN_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEXSCAN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXSCAN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXSCAN_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "DEXSCAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXSCAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXSCAN_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "DEXSCAN_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "DEXSCAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXSCAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXSCAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXSCAN_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXSCAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXSCAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXSCAN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEXSCAN_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinNetProfit, "DEXSCAN_NOTIFY_MIN_NET_PROFIT")
	setDuration(&cfg.Notify.DedupWindow, "DEXSCAN_NOTIFY_DEDUP_WINDOW")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEXSCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEXSCAN_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "DEXSCAN_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXSCAN_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "DEXSCAN_SERVER_RATE_LIMIT_PER_MIN")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "DEXSCAN_METRICS_ENABLED")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "DEXSCAN_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "DEXSCAN_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "DEXSCAN_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "DEXSCAN_ARCHIVE_BATCH_SIZE")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEXSCAN_MODE")
	setStr(&cfg.LogLevel, "DEXSCAN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

func setFloat64Slice(dst *[]float64, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		parsed := make([]float64, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return
			}
			parsed = append(parsed, f)
		}
		if len(parsed) > 0 {
			*dst = parsed
		}
	}
}
