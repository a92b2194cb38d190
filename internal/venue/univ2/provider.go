// Package univ2 quotes UniswapV2-compatible pools over JSON-RPC. One
// Provider serves every configured venue; pool addresses are resolved through
// each venue's factory contract and cached, reserves are re-read on every
// quote so snapshots always reflect current chain state.
package univ2

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// Backend is the subset of the Ethereum JSON-RPC client the provider needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Config tunes the provider. Zero values fall back to defaults.
type Config struct {
	Venues            []domain.Venue
	PairCacheSize     int     // resolved pool addresses kept in memory
	RequestsPerSecond float64 // RPC budget shared across all venues
	Burst             int
	CallTimeout       time.Duration // per eth_call deadline
}

func (c Config) withDefaults() Config {
	if c.PairCacheSize <= 0 {
		c.PairCacheSize = 512
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	return c
}

// pairEntry is a cached factory lookup. Entries for nonexistent pools are
// cached too, so a pool deployed later is only seen after the entry ages out.
type pairEntry struct {
	address common.Address
	token0  common.Address
	exists  bool
}

// Provider implements domain.QuoteProvider against live chain state.
type Provider struct {
	backend Backend
	meta    domain.TokenMetaCache // optional, may be nil
	cfg     Config
	byName  map[string]domain.Venue
	venues  []domain.Venue
	pairs   *lru.Cache[string, pairEntry]
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time

	factoryABI abi.ABI
	pairABI    abi.ABI
	erc20ABI   abi.ABI

	decMu    sync.RWMutex
	decimals map[string]uint8
}

// NewProvider builds a provider over backend for the venues in cfg. meta may
// be nil, in which case token decimals are resolved on-chain and kept only in
// process memory.
func NewProvider(backend Backend, meta domain.TokenMetaCache, cfg Config, logger *slog.Logger) (*Provider, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Venues) == 0 {
		return nil, fmt.Errorf("univ2: no venues configured: %w", domain.ErrConfiguration)
	}

	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("univ2: parse factory abi: %w", err)
	}
	pairABI, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, fmt.Errorf("univ2: parse pair abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("univ2: parse erc20 abi: %w", err)
	}

	cache, err := lru.New[string, pairEntry](cfg.PairCacheSize)
	if err != nil {
		return nil, fmt.Errorf("univ2: pair cache: %w", err)
	}

	byName := make(map[string]domain.Venue, len(cfg.Venues))
	for _, v := range cfg.Venues {
		byName[v.Name] = v
	}

	return &Provider{
		backend:    backend,
		meta:       meta,
		cfg:        cfg,
		byName:     byName,
		venues:     append([]domain.Venue(nil), cfg.Venues...),
		pairs:      cache,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     logger.With(slog.String("component", "venue")),
		now:        time.Now,
		factoryABI: factoryABI,
		pairABI:    pairABI,
		erc20ABI:   erc20ABI,
		decimals:   make(map[string]uint8),
	}, nil
}

// WithClock overrides the time source.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// Venues returns the configured venues in configuration order.
func (p *Provider) Venues() []domain.Venue {
	return append([]domain.Venue(nil), p.venues...)
}

// GetQuote reads the pool backing pair on the named venue and returns a
// decimal-adjusted snapshot. ReserveIn and Liquidity are denominated in
// TokenA units regardless of the on-chain token ordering.
func (p *Provider) GetQuote(ctx context.Context, pair domain.TokenPair, venue string) (domain.VenueQuote, error) {
	v, ok := p.byName[venue]
	if !ok {
		return domain.VenueQuote{}, fmt.Errorf("univ2: unknown venue %q: %w", venue, domain.ErrConfiguration)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.VenueQuote{}, err
	}

	entry, err := p.poolFor(ctx, v, pair)
	if err != nil {
		return domain.VenueQuote{}, err
	}
	if !entry.exists {
		return domain.VenueQuote{}, fmt.Errorf("univ2: %s has no pool for %s: %w", venue, pair.Name(), domain.ErrDataUnavailable)
	}

	r0, r1, err := p.reserves(ctx, v.Name, entry.address)
	if err != nil {
		return domain.VenueQuote{}, err
	}

	decA, err := p.decimalsFor(ctx, v.Name, pair.TokenA)
	if err != nil {
		return domain.VenueQuote{}, err
	}
	decB, err := p.decimalsFor(ctx, v.Name, pair.TokenB)
	if err != nil {
		return domain.VenueQuote{}, err
	}

	// The pool stores reserves in token0/token1 order; map them back onto
	// the pair's TokenA/TokenB orientation.
	reserveIn, reserveOut := r0, r1
	if entry.token0 != common.HexToAddress(pair.TokenA.Address) {
		reserveIn, reserveOut = r1, r0
	}

	adjIn := toUnits(reserveIn, decA)
	adjOut := toUnits(reserveOut, decB)

	var price float64
	if adjIn > 0 {
		price = adjOut / adjIn
	}

	block, err := p.backend.BlockNumber(ctx)
	if err != nil {
		p.logger.DebugContext(ctx, "block number unavailable",
			slog.String("venue", venue), slog.Any("error", err))
		block = 0
	}

	return domain.VenueQuote{
		Venue:       venue,
		Pair:        pair,
		ReserveIn:   adjIn,
		ReserveOut:  adjOut,
		Price:       price,
		Liquidity:   adjIn,
		BlockNumber: block,
		FetchedAt:   p.now().UTC(),
	}, nil
}

// poolFor resolves the pool address and token0 for pair on v, consulting the
// LRU cache first.
func (p *Provider) poolFor(ctx context.Context, v domain.Venue, pair domain.TokenPair) (pairEntry, error) {
	key := v.Name + ":" + pair.Key()
	if entry, ok := p.pairs.Get(key); ok {
		return entry, nil
	}

	data, err := p.factoryABI.Pack("getPair",
		common.HexToAddress(pair.TokenA.Address), common.HexToAddress(pair.TokenB.Address))
	if err != nil {
		return pairEntry{}, fmt.Errorf("univ2: pack getPair: %w", err)
	}
	out, err := p.call(ctx, common.HexToAddress(v.Factory), data)
	if err != nil {
		return pairEntry{}, &domain.ProviderError{Venue: v.Name, Op: "getPair", Err: err}
	}
	vals, err := p.factoryABI.Unpack("getPair", out)
	if err != nil {
		return pairEntry{}, &domain.ProviderError{Venue: v.Name, Op: "getPair", Err: err}
	}
	addr := vals[0].(common.Address)

	if addr == (common.Address{}) {
		p.pairs.Add(key, pairEntry{})
		return pairEntry{}, nil
	}

	t0, err := p.token0(ctx, v.Name, addr)
	if err != nil {
		return pairEntry{}, err
	}
	entry := pairEntry{address: addr, token0: t0, exists: true}
	p.pairs.Add(key, entry)
	return entry, nil
}

func (p *Provider) token0(ctx context.Context, venue string, pool common.Address) (common.Address, error) {
	data, err := p.pairABI.Pack("token0")
	if err != nil {
		return common.Address{}, fmt.Errorf("univ2: pack token0: %w", err)
	}
	out, err := p.call(ctx, pool, data)
	if err != nil {
		return common.Address{}, &domain.ProviderError{Venue: venue, Op: "token0", Err: err}
	}
	vals, err := p.pairABI.Unpack("token0", out)
	if err != nil {
		return common.Address{}, &domain.ProviderError{Venue: venue, Op: "token0", Err: err}
	}
	return vals[0].(common.Address), nil
}

func (p *Provider) reserves(ctx context.Context, venue string, pool common.Address) (*big.Int, *big.Int, error) {
	data, err := p.pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("univ2: pack getReserves: %w", err)
	}
	out, err := p.call(ctx, pool, data)
	if err != nil {
		return nil, nil, &domain.ProviderError{Venue: venue, Op: "getReserves", Err: err}
	}
	vals, err := p.pairABI.Unpack("getReserves", out)
	if err != nil {
		return nil, nil, &domain.ProviderError{Venue: venue, Op: "getReserves", Err: err}
	}
	return vals[0].(*big.Int), vals[1].(*big.Int), nil
}

// decimalsFor resolves token decimals: the pair's own metadata first, then
// the in-process map, then the shared metadata cache, and finally the ERC-20
// contract itself.
func (p *Provider) decimalsFor(ctx context.Context, venue string, token domain.Token) (uint8, error) {
	if token.Decimals > 0 {
		return token.Decimals, nil
	}
	addr := domain.NormalizeAddress(token.Address)

	p.decMu.RLock()
	d, ok := p.decimals[addr]
	p.decMu.RUnlock()
	if ok {
		return d, nil
	}

	if p.meta != nil {
		if cached, err := p.meta.GetToken(ctx, addr); err == nil && cached.Decimals > 0 {
			p.rememberDecimals(addr, cached.Decimals)
			return cached.Decimals, nil
		}
	}

	data, err := p.erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("univ2: pack decimals: %w", err)
	}
	out, err := p.call(ctx, common.HexToAddress(token.Address), data)
	if err != nil {
		return 0, &domain.ProviderError{Venue: venue, Op: "decimals", Err: err}
	}
	vals, err := p.erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, &domain.ProviderError{Venue: venue, Op: "decimals", Err: err}
	}
	d = vals[0].(uint8)

	p.rememberDecimals(addr, d)
	if p.meta != nil {
		stored := token
		stored.Address = addr
		stored.Decimals = d
		if err := p.meta.SetToken(ctx, stored); err != nil {
			p.logger.DebugContext(ctx, "token metadata store failed",
				slog.String("address", addr), slog.Any("error", err))
		}
	}
	return d, nil
}

func (p *Provider) rememberDecimals(addr string, d uint8) {
	p.decMu.Lock()
	p.decimals[addr] = d
	p.decMu.Unlock()
}

func (p *Provider) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	return p.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func toUnits(x *big.Int, decimals uint8) float64 {
	f := new(big.Float).SetInt(x)
	if decimals > 0 {
		f.Quo(f, new(big.Float).SetFloat64(math.Pow10(int(decimals))))
	}
	out, _ := f.Float64()
	return out
}

// FeeSource reports the chain's suggested gas price, converted to gwei.
type FeeSource struct {
	backend Backend
}

// NewFeeSource wraps backend as a domain.FeeRateSource.
func NewFeeSource(backend Backend) *FeeSource {
	return &FeeSource{backend: backend}
}

// CurrentRate returns the node's suggested gas price in gwei.
func (f *FeeSource) CurrentRate(ctx context.Context) (float64, error) {
	wei, err := f.backend.SuggestGasPrice(ctx)
	if err != nil {
		return 0, &domain.ProviderError{Venue: "chain", Op: "suggestGasPrice", Err: err}
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return gwei, nil
}

var (
	_ domain.QuoteProvider = (*Provider)(nil)
	_ domain.FeeRateSource = (*FeeSource)(nil)
)
