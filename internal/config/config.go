// Package config defines the top-level configuration for the dex scanner and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DEXSCAN_* environment
// variables.
type Config struct {
	Chain     ChainConfig            `toml:"chain"`
	Venues    map[string]VenueConfig `toml:"venues"`
	Tokens    TokensConfig           `toml:"tokens"`
	Discovery DiscoveryConfig        `toml:"discovery"`
	Scan      ScanConfig             `toml:"scan"`
	Gas       GasConfig              `toml:"gas"`
	RefPrice  RefPriceConfig         `toml:"refprice"`
	Redis     RedisConfig            `toml:"redis"`
	Postgres  PostgresConfig         `toml:"postgres"`
	S3        S3Config               `toml:"s3"`
	Notify    NotifyConfig           `toml:"notify"`
	Server    ServerConfig           `toml:"server"`
	Metrics   MetricsConfig          `toml:"metrics"`
	Archive   ArchiveConfig          `toml:"archive"`
	Mode      string                 `toml:"mode"`
	LogLevel  string                 `toml:"log_level"`
}

// ChainConfig holds Ethereum JSON-RPC connection parameters. The RPC URL can
// be given in the clear or as an encrypted secret file.
type ChainConfig struct {
	RPCURL           string `toml:"rpc_url"`
	ChainID          int64  `toml:"chain_id"`
	EncryptedRPCPath string `toml:"encrypted_rpc_path"`
	SecretPassword   string `toml:"secret_password"`
}

// VenueConfig describes one UniswapV2-compatible exchange.
type VenueConfig struct {
	Factory string  `toml:"factory"`
	Router  string  `toml:"router"`
	FeeBps  float64 `toml:"fee_bps"`
}

// FeeRate returns the pool fee as a fraction, e.g. 30 bps -> 0.003.
func (v VenueConfig) FeeRate() float64 {
	return v.FeeBps / 10_000
}

// TokenConfig describes one tracked ERC-20 token.
type TokenConfig struct {
	Symbol   string `toml:"symbol"`
	Address  string `toml:"address"`
	Decimals int    `toml:"decimals"`
	Tier     string `toml:"tier"`
}

// TokensConfig holds the token universe discovery pairs from.
type TokensConfig struct {
	Hub     string        `toml:"hub"`
	Stables []string      `toml:"stables"`
	Known   []TokenConfig `toml:"known"`
}

// Token returns the known-token entry for symbol, if present.
func (t TokensConfig) Token(symbol string) (TokenConfig, bool) {
	for _, tok := range t.Known {
		if tok.Symbol == symbol {
			return tok, true
		}
	}
	return TokenConfig{}, false
}

// DiscoveryConfig holds pair discovery and registry parameters.
type DiscoveryConfig struct {
	MaxPairsPerToken  int      `toml:"max_pairs_per_token"`
	MinVenueLiquidity float64  `toml:"min_venue_liquidity"`
	MaxPriceDeviation float64  `toml:"max_price_deviation"`
	MaxTrackedPairs   int      `toml:"max_tracked_pairs"`
	BatchSize         int      `toml:"batch_size"`
	BatchDelay        duration `toml:"batch_delay"`
	Interval          duration `toml:"interval"`
	MaxAge            duration `toml:"max_age"`
	LockTTL           duration `toml:"lock_ttl"`
}

// ScanConfig holds scan-loop, sizing, and filter parameters.
type ScanConfig struct {
	Interval          duration  `toml:"interval"`
	BatchSize         int       `toml:"batch_size"`
	BatchDelay        duration  `toml:"batch_delay"`
	MinNetProfit      float64   `toml:"min_net_profit"`
	MinConfidence     float64   `toml:"min_confidence"`
	MinLiquidityRatio float64   `toml:"min_liquidity_ratio"`
	MaxPriceImpact    float64   `toml:"max_price_impact"`
	MaxTradeSize      float64   `toml:"max_trade_size"`
	LadderFractions   []float64 `toml:"ladder_fractions"`
	FallbackPairs     []string  `toml:"fallback_pairs"`
}

// GasConfig holds gas cost model parameters.
type GasConfig struct {
	BaseGasUnits    float64  `toml:"base_gas_units"`
	RefreshInterval duration `toml:"refresh_interval"`
	DefaultRateGwei float64  `toml:"default_rate_gwei"`
}

// RefPriceConfig holds the reference price feed parameters.
type RefPriceConfig struct {
	URL      string   `toml:"url"`
	APIKey   string   `toml:"api_key"`
	Asset    string   `toml:"asset"`
	Currency string   `toml:"currency"`
	Fallback float64  `toml:"fallback"`
	TTL      duration `toml:"ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	QuoteTTL   duration `toml:"quote_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials and alert policy.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinNetProfit      float64  `toml:"min_net_profit"`
	DedupWindow       duration `toml:"dedup_window"`
}

// ServerConfig holds HTTP server parameters. RateLimitPerMin caps API
// requests per client IP per minute; zero disables the limiter.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// MetricsConfig holds Prometheus exposure parameters.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// ArchiveConfig holds S3 offload parameters for aged rows.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	BatchSize     int      `toml:"batch_size"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml and target Ethereum mainnet.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID: 1,
		},
		Venues: map[string]VenueConfig{
			"uniswap": {
				Factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f",
				Router:  "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
				FeeBps:  30,
			},
			"sushiswap": {
				Factory: "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac",
				Router:  "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
				FeeBps:  30,
			},
		},
		Tokens: TokensConfig{
			Hub:     "WETH",
			Stables: []string{"USDC", "USDT", "DAI"},
			Known: []TokenConfig{
				{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18, Tier: "high"},
				{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Tier: "high"},
				{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6, Tier: "high"},
				{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18, Tier: "medium"},
				{Symbol: "WBTC", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8, Tier: "medium"},
				{Symbol: "LINK", Address: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Decimals: 18, Tier: "low"},
			},
		},
		Discovery: DiscoveryConfig{
			MaxPairsPerToken:  5,
			MinVenueLiquidity: 10,
			MaxPriceDeviation: 0.10,
			MaxTrackedPairs:   20,
			BatchSize:         10,
			BatchDelay:        duration{time.Second},
			Interval:          duration{6 * time.Hour},
			MaxAge:            duration{24 * time.Hour},
			LockTTL:           duration{5 * time.Minute},
		},
		Scan: ScanConfig{
			Interval:          duration{30 * time.Second},
			BatchSize:         5,
			BatchDelay:        duration{time.Second},
			MinNetProfit:      0,
			MinConfidence:     0,
			MinLiquidityRatio: 0.1,
			MaxPriceImpact:    0.05,
			LadderFractions:   []float64{0.01, 0.025, 0.05, 0.1},
			FallbackPairs:     []string{"WETH/USDC", "WETH/USDT", "WETH/DAI"},
		},
		Gas: GasConfig{
			BaseGasUnits:    350_000,
			RefreshInterval: duration{30 * time.Second},
			DefaultRateGwei: 30,
		},
		RefPrice: RefPriceConfig{
			URL:      "https://api.coingecko.com/api/v3",
			Asset:    "ethereum",
			Currency: "usd",
			Fallback: 2000,
			TTL:      duration{5 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			KeyPrefix:  "dexscan",
			QuoteTTL:   duration{15 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dexscan",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dexscan-archive",
			Prefix:         "archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events:      []string{"opportunity_found", "scan_completed", "error"},
			DedupWindow: duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitPerMin: 120,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
			BatchSize:     500,
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":     true,
	"once":     true,
	"discover": true,
	"serve":    true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validTiers enumerates the accepted token tier names. An empty tier means
// low priority.
var validTiers = map[string]bool{
	"":       true,
	"high":   true,
	"medium": true,
	"low":    true,
}

// validEvents enumerates the notification event names.
var validEvents = map[string]bool{
	"opportunity_found":   true,
	"scan_completed":      true,
	"discovery_completed": true,
	"error":               true,
}

// needsChain reports whether mode reaches the JSON-RPC endpoint.
func needsChain(mode string) bool {
	switch mode {
	case "scan", "once", "discover", "full":
		return true
	}
	return false
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. The error wraps
// domain.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, once, discover, serve, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain: an RPC source is required for any mode that quotes pools.
	if needsChain(strings.ToLower(c.Mode)) {
		if c.Chain.RPCURL == "" && c.Chain.EncryptedRPCPath == "" {
			errs = append(errs, "chain: either rpc_url or encrypted_rpc_path must be set for mode "+c.Mode)
		}
		if c.Chain.EncryptedRPCPath != "" && c.Chain.SecretPassword == "" {
			errs = append(errs, "chain: secret_password is required when encrypted_rpc_path is set")
		}
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
	}

	// Venues: cross-venue comparison needs two sides.
	if needsChain(strings.ToLower(c.Mode)) && len(c.Venues) < 2 {
		errs = append(errs, fmt.Sprintf("venues: at least two venues are required, got %d", len(c.Venues)))
	}
	for name, v := range c.Venues {
		if v.Factory == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: factory must not be empty", name))
		}
		if v.FeeBps < 0 || v.FeeBps >= 10_000 {
			errs = append(errs, fmt.Sprintf("venues.%s: fee_bps must be in [0, 10000), got %g", name, v.FeeBps))
		}
	}

	// Tokens
	if c.Tokens.Hub == "" {
		errs = append(errs, "tokens: hub must not be empty")
	} else if _, ok := c.Tokens.Token(c.Tokens.Hub); !ok {
		errs = append(errs, fmt.Sprintf("tokens: hub %q is not a known token", c.Tokens.Hub))
	}
	for _, sym := range c.Tokens.Stables {
		if _, ok := c.Tokens.Token(sym); !ok {
			errs = append(errs, fmt.Sprintf("tokens: stable %q is not a known token", sym))
		}
	}
	seen := make(map[string]bool, len(c.Tokens.Known))
	for _, tok := range c.Tokens.Known {
		if tok.Symbol == "" || tok.Address == "" {
			errs = append(errs, "tokens: every known token needs a symbol and an address")
			continue
		}
		if seen[tok.Symbol] {
			errs = append(errs, fmt.Sprintf("tokens: duplicate symbol %q", tok.Symbol))
		}
		seen[tok.Symbol] = true
		if !strings.HasPrefix(strings.ToLower(tok.Address), "0x") || len(tok.Address) != 42 {
			errs = append(errs, fmt.Sprintf("tokens.%s: address %q is not a 0x-prefixed 20-byte hex address", tok.Symbol, tok.Address))
		}
		if tok.Decimals < 0 || tok.Decimals > 36 {
			errs = append(errs, fmt.Sprintf("tokens.%s: decimals must be in [0, 36], got %d", tok.Symbol, tok.Decimals))
		}
		if !validTiers[strings.ToLower(tok.Tier)] {
			errs = append(errs, fmt.Sprintf("tokens.%s: unknown tier %q (valid: high, medium, low)", tok.Symbol, tok.Tier))
		}
	}

	// Discovery
	if c.Discovery.MaxPairsPerToken < 1 {
		errs = append(errs, "discovery: max_pairs_per_token must be >= 1")
	}
	if c.Discovery.MaxPriceDeviation <= 0 || c.Discovery.MaxPriceDeviation > 1 {
		errs = append(errs, fmt.Sprintf("discovery: max_price_deviation must be in (0, 1], got %g", c.Discovery.MaxPriceDeviation))
	}
	if c.Discovery.MaxTrackedPairs < 1 {
		errs = append(errs, "discovery: max_tracked_pairs must be >= 1")
	}
	if c.Discovery.Interval.Duration <= 0 {
		errs = append(errs, "discovery: interval must be positive")
	}
	if c.Discovery.MaxAge.Duration < c.Discovery.Interval.Duration {
		errs = append(errs, "discovery: max_age must not be shorter than interval")
	}

	// Scan
	if c.Scan.Interval.Duration <= 0 {
		errs = append(errs, "scan: interval must be positive")
	}
	if c.Scan.BatchSize < 1 {
		errs = append(errs, "scan: batch_size must be >= 1")
	}
	if c.Scan.MinConfidence < 0 || c.Scan.MinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("scan: min_confidence must be in [0, 1], got %g", c.Scan.MinConfidence))
	}
	if c.Scan.MaxPriceImpact <= 0 || c.Scan.MaxPriceImpact >= 1 {
		errs = append(errs, fmt.Sprintf("scan: max_price_impact must be in (0, 1), got %g", c.Scan.MaxPriceImpact))
	}
	for _, f := range c.Scan.LadderFractions {
		if f <= 0 || f > 1 {
			errs = append(errs, fmt.Sprintf("scan: ladder fraction %g must be in (0, 1]", f))
			break
		}
	}
	for _, p := range c.Scan.FallbackPairs {
		if !strings.Contains(p, "/") {
			errs = append(errs, fmt.Sprintf("scan: fallback pair %q must be SYMBOL/SYMBOL", p))
		}
	}

	// Gas
	if c.Gas.BaseGasUnits <= 0 {
		errs = append(errs, "gas: base_gas_units must be > 0")
	}
	if c.Gas.DefaultRateGwei <= 0 {
		errs = append(errs, "gas: default_rate_gwei must be > 0")
	}

	// Reference price
	if c.RefPrice.Fallback <= 0 {
		errs = append(errs, "refprice: fallback must be > 0")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// S3: only needed when the archiver runs.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Notify
	for _, ev := range c.Notify.Events {
		if !validEvents[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: opportunity_found, scan_completed, discovery_completed, error)", ev))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s: %w", strings.Join(errs, "\n  - "), domain.ErrConfiguration)
	}
	return nil
}
