package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quellen-dev/dexscan/internal/domain"
)

var (
	tokWETH = domain.Token{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18, Tier: domain.TierHigh}
	tokUSDC = domain.Token{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6, Tier: domain.TierHigh}
	tokUSDT = domain.Token{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6, Tier: domain.TierHigh}
	tokDAI  = domain.Token{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18, Tier: domain.TierMedium}
	tokLINK = domain.Token{Symbol: "LINK", Address: "0x514910771af9ca656af840dff83e8264ecf986ca", Decimals: 18, Tier: domain.TierLow}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticRefPrice struct {
	price float64
}

func (s staticRefPrice) Price() float64 { return s.price }

type fakeQuotes struct {
	mu     sync.Mutex
	venues []domain.Venue
	quotes map[string]domain.VenueQuote
	fail   map[string]error
	calls  int
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		venues: []domain.Venue{{Name: "uniswap"}, {Name: "sushiswap"}},
		quotes: make(map[string]domain.VenueQuote),
		fail:   make(map[string]error),
	}
}

func (f *fakeQuotes) set(pair domain.TokenPair, venue string, liquidity, price float64) {
	f.quotes[venue+"|"+pair.Key()] = domain.VenueQuote{
		Venue:      venue,
		Pair:       pair,
		ReserveIn:  liquidity,
		ReserveOut: liquidity * price,
		Price:      price,
		Liquidity:  liquidity,
		FetchedAt:  time.Now().UTC(),
	}
}

func (f *fakeQuotes) GetQuote(_ context.Context, pair domain.TokenPair, venue string) (domain.VenueQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.fail[venue+"|"+pair.Key()]; ok {
		return domain.VenueQuote{}, err
	}
	q, ok := f.quotes[venue+"|"+pair.Key()]
	if !ok {
		return domain.VenueQuote{}, domain.ErrDataUnavailable
	}
	return q, nil
}

func (f *fakeQuotes) Venues() []domain.Venue { return f.venues }

func (f *fakeQuotes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestEngine(provider domain.QuoteProvider, cfg Config) *Engine {
	if len(cfg.Universe) == 0 {
		cfg.Universe = []domain.Token{tokWETH, tokUSDC, tokUSDT}
	}
	if cfg.Hub.Address == "" {
		cfg.Hub = tokWETH
	}
	if len(cfg.StableSymbols) == 0 {
		cfg.StableSymbols = []string{"USDC", "USDT", "DAI"}
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = time.Millisecond
	}
	return NewEngine(provider, staticRefPrice{price: 2000}, cfg, discardLogger())
}

func TestGenerate_HubAndStablePairs(t *testing.T) {
	eng := newTestEngine(newFakeQuotes(), Config{})

	pairs := eng.Generate()

	keys := make(map[string]int, len(pairs))
	for _, p := range pairs {
		keys[p.Key()]++
	}

	wethUSDC := domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDC}
	wethUSDT := domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDT}
	usdcUSDT := domain.TokenPair{TokenA: tokUSDC, TokenB: tokUSDT}

	assert.Equal(t, 1, keys[wethUSDC.Key()])
	assert.Equal(t, 1, keys[wethUSDT.Key()])
	// Generated once as a stable pair, again as a tier combination; the
	// unordered dedupe must collapse both onto one candidate.
	assert.Equal(t, 1, keys[usdcUSDT.Key()])
	assert.Len(t, pairs, 3)
}

func TestGenerate_PerTokenCap(t *testing.T) {
	aaa := domain.Token{Symbol: "AAA", Address: "0xaaa1", Tier: domain.TierHigh}
	bbb := domain.Token{Symbol: "BBB", Address: "0xbbb1", Tier: domain.TierHigh}
	ccc := domain.Token{Symbol: "CCC", Address: "0xccc1", Tier: domain.TierHigh}
	ddd := domain.Token{Symbol: "DDD", Address: "0xddd1", Tier: domain.TierHigh}

	eng := newTestEngine(newFakeQuotes(), Config{
		Universe:         []domain.Token{tokWETH, aaa, bbb, ccc, ddd},
		StableSymbols:    []string{"none"},
		MaxPairsPerToken: 2,
	})

	pairs := eng.Generate()

	counts := make(map[string]int)
	for _, p := range pairs {
		counts[p.TokenA.Symbol]++
		counts[p.TokenB.Symbol]++
	}
	for symbol, n := range counts {
		assert.LessOrEqual(t, n, 2, "token %s over its pair budget", symbol)
	}

	// Hub pairs consume the budget first, leftover tokens pair up after.
	require.Len(t, pairs, 4)
	assert.Equal(t, "WETH/AAA", pairs[0].Name())
	assert.Equal(t, "WETH/BBB", pairs[1].Name())
	assert.Equal(t, "AAA/BBB", pairs[2].Name())
	assert.Equal(t, "CCC/DDD", pairs[3].Name())
}

func TestGenerate_TierOrderPrioritizesHighTier(t *testing.T) {
	eng := newTestEngine(newFakeQuotes(), Config{
		Universe:         []domain.Token{tokWETH, tokUSDC, tokDAI, tokLINK},
		StableSymbols:    []string{"USDC", "DAI"},
		MaxPairsPerToken: 2,
	})

	pairs := eng.Generate()

	// WETH's budget goes to the high-tier USDC pair before DAI or LINK.
	require.NotEmpty(t, pairs)
	assert.Equal(t, "WETH/USDC", pairs[0].Name())
}

func TestValidate_BuildsMetrics(t *testing.T) {
	provider := newFakeQuotes()
	pair := domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDC}
	provider.set(pair, "uniswap", 100, 2000)
	provider.set(pair, "sushiswap", 50, 2010)

	eng := newTestEngine(provider, Config{})
	checked := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	eng.WithClock(func() time.Time { return checked })

	dp, err := eng.Validate(context.Background(), pair)
	require.NoError(t, err)

	assert.Equal(t, pair.Key(), dp.Pair.Key())
	assert.Len(t, dp.Quotes, 2)
	assert.InDelta(t, 150, dp.Metrics.TotalLiquidity, 1e-12)
	assert.InDelta(t, 0.5, dp.Metrics.LiquidityRatio, 1e-12)
	assert.InDelta(t, 0.5, dp.Metrics.PriceDeviationPct, 1e-9)
	assert.Equal(t, domain.TierHigh, dp.Tier)
	assert.Equal(t, checked, dp.CheckedAt)
}

func TestValidate_StablePairLiquidityInHubUnits(t *testing.T) {
	provider := newFakeQuotes()
	pair := domain.TokenPair{TokenA: tokUSDC, TokenB: tokUSDT}
	provider.set(pair, "uniswap", 100_000, 1.0)
	provider.set(pair, "sushiswap", 50_000, 1.001)

	eng := newTestEngine(provider, Config{})

	dp, err := eng.Validate(context.Background(), pair)
	require.NoError(t, err)

	// 100k and 50k stable units at a 2000 reference price.
	assert.InDelta(t, 75, dp.Metrics.TotalLiquidity, 1e-9)
	assert.InDelta(t, 0.5, dp.Metrics.LiquidityRatio, 1e-9)

	// A pool an order of magnitude shallower misses the hub-unit floor.
	provider.set(pair, "sushiswap", 10_000, 1.001)
	_, err = eng.Validate(context.Background(), pair)
	var guard *domain.GuardError
	require.ErrorAs(t, err, &guard)
	assert.Equal(t, "venue_liquidity", guard.Guard)
	assert.InDelta(t, 5, guard.Value, 1e-9)
}

func TestValidate_LiquidityFloor(t *testing.T) {
	provider := newFakeQuotes()
	pair := domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDC}
	provider.set(pair, "uniswap", 100, 2000)
	provider.set(pair, "sushiswap", 5, 2000)

	eng := newTestEngine(provider, Config{MinVenueLiquidity: 10})

	_, err := eng.Validate(context.Background(), pair)
	var guard *domain.GuardError
	require.ErrorAs(t, err, &guard)
	assert.Equal(t, "venue_liquidity", guard.Guard)
}

func TestValidate_PriceDeviationBound(t *testing.T) {
	provider := newFakeQuotes()
	pair := domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDC}
	provider.set(pair, "uniswap", 100, 2000)
	provider.set(pair, "sushiswap", 100, 2300)

	eng := newTestEngine(provider, Config{})

	// 15% apart is a broken pool, not an opportunity.
	_, err := eng.Validate(context.Background(), pair)
	var guard *domain.GuardError
	require.ErrorAs(t, err, &guard)
	assert.Equal(t, "price_deviation", guard.Guard)
	assert.InDelta(t, 0.15, guard.Value, 1e-9)
}

func TestValidate_MissingOnOneVenue(t *testing.T) {
	provider := newFakeQuotes()
	pair := domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDC}
	provider.set(pair, "uniswap", 100, 2000)

	eng := newTestEngine(provider, Config{})

	_, err := eng.Validate(context.Background(), pair)
	assert.True(t, domain.IsDataUnavailable(err))
}

func TestDiscover_RanksAndTruncates(t *testing.T) {
	provider := newFakeQuotes()
	wethUSDC := domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDC}
	wethUSDT := domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDT}
	usdcUSDT := domain.TokenPair{TokenA: tokUSDC, TokenB: tokUSDT}

	// Scores: WETH/USDT 30 (deviation bonus), WETH/USDC 25, USDC/USDT 14.25
	// (stable reserves convert to hub units through the reference price).
	provider.set(wethUSDC, "uniswap", 1000, 2000)
	provider.set(wethUSDC, "sushiswap", 1000, 2000)
	provider.set(wethUSDT, "uniswap", 500, 2000)
	provider.set(wethUSDT, "sushiswap", 500, 2010)
	provider.set(usdcUSDT, "uniswap", 100_000, 1.0)
	provider.set(usdcUSDT, "sushiswap", 50_000, 1.001)

	eng := newTestEngine(provider, Config{MaxTrackedPairs: 2})

	ranked, err := eng.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, ranked, 2)
	assert.Equal(t, wethUSDT.Key(), ranked[0].Pair.Key())
	assert.Equal(t, wethUSDC.Key(), ranked[1].Pair.Key())
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
	assert.InDelta(t, 30, ranked[0].Score, 0.01)
	assert.InDelta(t, 25, ranked[1].Score, 0.01)
}

func TestDiscover_SkipsFailingCandidates(t *testing.T) {
	provider := newFakeQuotes()
	wethUSDC := domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDC}
	wethUSDT := domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDT}

	provider.set(wethUSDC, "uniswap", 1000, 2000)
	provider.set(wethUSDC, "sushiswap", 1000, 2005)
	provider.fail["uniswap|"+wethUSDT.Key()] = &domain.ProviderError{
		Venue: "uniswap", Op: "get_pair", Err: fmt.Errorf("rpc timeout"),
	}

	eng := newTestEngine(provider, Config{})

	ranked, err := eng.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, wethUSDC.Key(), ranked[0].Pair.Key())
}

func TestRank_DenseOnTies(t *testing.T) {
	eng := newTestEngine(newFakeQuotes(), Config{})

	same := domain.PairMetrics{TotalLiquidity: 1000, LiquidityRatio: 1, PriceDeviationPct: 0}
	lower := domain.PairMetrics{TotalLiquidity: 100, LiquidityRatio: 1, PriceDeviationPct: 0}

	ranked := eng.rank([]domain.DiscoveredPair{
		{Pair: domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDT}, Metrics: same, Tier: domain.TierHigh},
		{Pair: domain.TokenPair{TokenA: tokWETH, TokenB: tokUSDC}, Metrics: same, Tier: domain.TierHigh},
		{Pair: domain.TokenPair{TokenA: tokUSDC, TokenB: tokUSDT}, Metrics: lower, Tier: domain.TierHigh},
	})

	require.Len(t, ranked, 3)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 1, ranked[1].Rank)
	assert.Equal(t, 2, ranked[2].Rank)
	// Equal scores order by pair identity for determinism.
	assert.True(t, ranked[0].Pair.Key() < ranked[1].Pair.Key())
}

func TestDiscover_HonorsCancellation(t *testing.T) {
	eng := newTestEngine(newFakeQuotes(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
