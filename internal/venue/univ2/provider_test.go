package univ2

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quellen-dev/dexscan/internal/domain"
)

var (
	factoryAddr = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	poolAddr    = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	wethAddr    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr    = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	testWETH = domain.Token{Symbol: "WETH", Address: strings.ToLower(wethAddr.Hex()), Decimals: 18, Tier: domain.TierHigh}
	testUSDC = domain.Token{Symbol: "USDC", Address: strings.ToLower(usdcAddr.Hex()), Decimals: 6, Tier: domain.TierHigh}

	testFactoryABI = mustParseABI(factoryABIJSON)
	testPairABI    = mustParseABI(pairABIJSON)
	testERC20ABI   = mustParseABI(erc20ABIJSON)

	fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend answers eth_call requests with ABI-encoded return data, keyed
// by the method selector and target contract.
type fakeBackend struct {
	mu       sync.Mutex
	pools    map[string]common.Address
	token0s  map[common.Address]common.Address
	reserves map[common.Address][2]*big.Int
	decimals map[common.Address]uint8
	block    uint64
	gasPrice *big.Int
	failOps  map[string]error
	blockErr error
	gasErr   error
	calls    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pools:    make(map[string]common.Address),
		token0s:  make(map[common.Address]common.Address),
		reserves: make(map[common.Address][2]*big.Int),
		decimals: make(map[common.Address]uint8),
		block:    19_000_000,
		gasPrice: big.NewInt(30_000_000_000),
		failOps:  make(map[string]error),
	}
}

func poolKey(a, b common.Address) string {
	x, y := strings.ToLower(a.Hex()), strings.ToLower(b.Hex())
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}

func (b *fakeBackend) addPool(pool, token0, token1 common.Address, r0, r1 *big.Int) {
	b.pools[poolKey(token0, token1)] = pool
	b.token0s[pool] = token0
	b.reserves[pool] = [2]*big.Int{r0, r1}
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++

	data := msg.Data
	switch {
	case bytes.HasPrefix(data, testFactoryABI.Methods["getPair"].ID):
		if err := b.failOps["getPair"]; err != nil {
			return nil, err
		}
		vals, err := testFactoryABI.Methods["getPair"].Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		pool := b.pools[poolKey(vals[0].(common.Address), vals[1].(common.Address))]
		return testFactoryABI.Methods["getPair"].Outputs.Pack(pool)

	case bytes.HasPrefix(data, testPairABI.Methods["token0"].ID):
		if err := b.failOps["token0"]; err != nil {
			return nil, err
		}
		return testPairABI.Methods["token0"].Outputs.Pack(b.token0s[*msg.To])

	case bytes.HasPrefix(data, testPairABI.Methods["getReserves"].ID):
		if err := b.failOps["getReserves"]; err != nil {
			return nil, err
		}
		r, ok := b.reserves[*msg.To]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return testPairABI.Methods["getReserves"].Outputs.Pack(r[0], r[1], uint32(0))

	case bytes.HasPrefix(data, testERC20ABI.Methods["decimals"].ID):
		if err := b.failOps["decimals"]; err != nil {
			return nil, err
		}
		d, ok := b.decimals[*msg.To]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return testERC20ABI.Methods["decimals"].Outputs.Pack(d)
	}
	return nil, errors.New("unexpected call")
}

func (b *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blockErr != nil {
		return 0, b.blockErr
	}
	return b.block, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gasErr != nil {
		return nil, b.gasErr
	}
	return new(big.Int).Set(b.gasPrice), nil
}

type stubMeta struct {
	mu     sync.Mutex
	tokens map[string]domain.Token
	gets   int
	sets   int
}

func newStubMeta() *stubMeta {
	return &stubMeta{tokens: make(map[string]domain.Token)}
}

func (m *stubMeta) GetToken(_ context.Context, address string) (domain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	tok, ok := m.tokens[domain.NormalizeAddress(address)]
	if !ok {
		return domain.Token{}, domain.ErrCacheMiss
	}
	return tok, nil
}

func (m *stubMeta) SetToken(_ context.Context, token domain.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.tokens[domain.NormalizeAddress(token.Address)] = token
	return nil
}

func newTestProvider(t *testing.T, backend Backend, meta domain.TokenMetaCache) *Provider {
	t.Helper()
	p, err := NewProvider(backend, meta, Config{
		Venues:            []domain.Venue{{Name: "uniswap", Factory: factoryAddr.Hex(), FeeRate: 0.003}},
		RequestsPerSecond: 1000,
		Burst:             100,
	}, discardLogger())
	require.NoError(t, err)
	return p.WithClock(func() time.Time { return fixedNow })
}

// seedWETHUSDCPool registers the canonical pool: 1000 WETH against 2,000,000
// USDC, with USDC as token0 the way the lower address sorts on chain.
func seedWETHUSDCPool(b *fakeBackend) {
	wethRaw := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	usdcRaw := big.NewInt(2_000_000_000_000)
	b.addPool(poolAddr, usdcAddr, wethAddr, usdcRaw, wethRaw)
}

func TestGetQuote_OrientsReservesToPair(t *testing.T) {
	backend := newFakeBackend()
	seedWETHUSDCPool(backend)
	p := newTestProvider(t, backend, nil)

	pair := domain.TokenPair{TokenA: testWETH, TokenB: testUSDC}
	quote, err := p.GetQuote(context.Background(), pair, "uniswap")
	require.NoError(t, err)

	assert.Equal(t, "uniswap", quote.Venue)
	assert.InDelta(t, 1000.0, quote.ReserveIn, 1e-9)
	assert.InDelta(t, 2_000_000.0, quote.ReserveOut, 1e-6)
	assert.InDelta(t, 2000.0, quote.Price, 1e-9)
	assert.InDelta(t, 1000.0, quote.Liquidity, 1e-9)
	assert.Equal(t, uint64(19_000_000), quote.BlockNumber)
	assert.Equal(t, fixedNow, quote.FetchedAt)
	assert.True(t, quote.Usable())
}

func TestGetQuote_ReversedPairFlipsOrientation(t *testing.T) {
	backend := newFakeBackend()
	seedWETHUSDCPool(backend)
	p := newTestProvider(t, backend, nil)

	pair := domain.TokenPair{TokenA: testUSDC, TokenB: testWETH}
	quote, err := p.GetQuote(context.Background(), pair, "uniswap")
	require.NoError(t, err)

	assert.InDelta(t, 2_000_000.0, quote.ReserveIn, 1e-6)
	assert.InDelta(t, 1000.0, quote.ReserveOut, 1e-9)
	assert.InDelta(t, 0.0005, quote.Price, 1e-12)
	assert.InDelta(t, 2_000_000.0, quote.Liquidity, 1e-6)
}

func TestGetQuote_MissingPoolIsDataUnavailable(t *testing.T) {
	backend := newFakeBackend()
	p := newTestProvider(t, backend, nil)

	pair := domain.TokenPair{TokenA: testWETH, TokenB: testUSDC}
	_, err := p.GetQuote(context.Background(), pair, "uniswap")
	require.Error(t, err)
	assert.True(t, domain.IsDataUnavailable(err))

	// The zero address is cached; the second lookup never reaches the RPC.
	before := backend.callCount()
	_, err = p.GetQuote(context.Background(), pair, "uniswap")
	require.Error(t, err)
	assert.Equal(t, before, backend.callCount())
}

func TestGetQuote_CachesPoolAddress(t *testing.T) {
	backend := newFakeBackend()
	seedWETHUSDCPool(backend)
	p := newTestProvider(t, backend, nil)

	pair := domain.TokenPair{TokenA: testWETH, TokenB: testUSDC}
	_, err := p.GetQuote(context.Background(), pair, "uniswap")
	require.NoError(t, err)
	// getPair, token0, getReserves.
	assert.Equal(t, 3, backend.callCount())

	_, err = p.GetQuote(context.Background(), pair, "uniswap")
	require.NoError(t, err)
	// Only the reserves are re-read.
	assert.Equal(t, 4, backend.callCount())
}

func TestGetQuote_ResolvesDecimalsOnChain(t *testing.T) {
	backend := newFakeBackend()
	seedWETHUSDCPool(backend)
	backend.decimals[wethAddr] = 18
	backend.decimals[usdcAddr] = 6
	meta := newStubMeta()
	p := newTestProvider(t, backend, meta)

	bare := func(tok domain.Token) domain.Token {
		tok.Decimals = 0
		return tok
	}
	pair := domain.TokenPair{TokenA: bare(testWETH), TokenB: bare(testUSDC)}

	quote, err := p.GetQuote(context.Background(), pair, "uniswap")
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, quote.Price, 1e-9)
	// getPair, token0, getReserves, decimals x2.
	assert.Equal(t, 5, backend.callCount())
	assert.Equal(t, 2, meta.sets)

	// Resolved decimals stay in process memory afterwards.
	_, err = p.GetQuote(context.Background(), pair, "uniswap")
	require.NoError(t, err)
	assert.Equal(t, 6, backend.callCount())
}

func TestGetQuote_UsesSharedTokenMetadata(t *testing.T) {
	backend := newFakeBackend()
	seedWETHUSDCPool(backend)
	meta := newStubMeta()
	require.NoError(t, meta.SetToken(context.Background(), testWETH))
	require.NoError(t, meta.SetToken(context.Background(), testUSDC))
	meta.sets = 0
	p := newTestProvider(t, backend, meta)

	bare := func(tok domain.Token) domain.Token {
		tok.Decimals = 0
		return tok
	}
	pair := domain.TokenPair{TokenA: bare(testWETH), TokenB: bare(testUSDC)}

	quote, err := p.GetQuote(context.Background(), pair, "uniswap")
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, quote.Price, 1e-9)
	assert.Equal(t, 3, backend.callCount())
	assert.Equal(t, 2, meta.gets)
	assert.Equal(t, 0, meta.sets)
}

func TestGetQuote_RPCFailureIsProviderError(t *testing.T) {
	backend := newFakeBackend()
	seedWETHUSDCPool(backend)
	backend.failOps["getReserves"] = errors.New("connection refused")
	p := newTestProvider(t, backend, nil)

	pair := domain.TokenPair{TokenA: testWETH, TokenB: testUSDC}
	_, err := p.GetQuote(context.Background(), pair, "uniswap")
	require.Error(t, err)
	assert.True(t, domain.IsProviderFailure(err))

	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "uniswap", perr.Venue)
	assert.Equal(t, "getReserves", perr.Op)
}

func TestGetQuote_UnknownVenue(t *testing.T) {
	backend := newFakeBackend()
	p := newTestProvider(t, backend, nil)

	pair := domain.TokenPair{TokenA: testWETH, TokenB: testUSDC}
	_, err := p.GetQuote(context.Background(), pair, "kyber")
	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))
}

func TestGetQuote_BlockNumberFailureIsSoft(t *testing.T) {
	backend := newFakeBackend()
	seedWETHUSDCPool(backend)
	backend.blockErr = errors.New("header sync lag")
	p := newTestProvider(t, backend, nil)

	pair := domain.TokenPair{TokenA: testWETH, TokenB: testUSDC}
	quote, err := p.GetQuote(context.Background(), pair, "uniswap")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), quote.BlockNumber)
	assert.InDelta(t, 2000.0, quote.Price, 1e-9)
}

func TestGetQuote_DrainedPoolIsNotUsable(t *testing.T) {
	backend := newFakeBackend()
	backend.addPool(poolAddr, usdcAddr, wethAddr, big.NewInt(0), big.NewInt(0))
	p := newTestProvider(t, backend, nil)

	pair := domain.TokenPair{TokenA: testWETH, TokenB: testUSDC}
	quote, err := p.GetQuote(context.Background(), pair, "uniswap")
	require.NoError(t, err)
	assert.False(t, quote.Usable())
	assert.Zero(t, quote.Price)
}

func TestNewProvider_RequiresVenues(t *testing.T) {
	_, err := NewProvider(newFakeBackend(), nil, Config{}, discardLogger())
	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))
}

func TestFeeSource_ConvertsWeiToGwei(t *testing.T) {
	backend := newFakeBackend()
	fees := NewFeeSource(backend)

	rate, err := fees.CurrentRate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 30.0, rate, 1e-9)

	backend.gasErr = errors.New("node unreachable")
	_, err = fees.CurrentRate(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsProviderFailure(err))
}

func TestToUnits(t *testing.T) {
	cases := []struct {
		name     string
		raw      *big.Int
		decimals uint8
		want     float64
	}{
		{"18 decimals", new(big.Int).Mul(big.NewInt(1500), big.NewInt(1e18)), 18, 1500},
		{"6 decimals", big.NewInt(2_000_000_000_000), 6, 2_000_000},
		{"no decimals", big.NewInt(42), 0, 42},
		{"zero", big.NewInt(0), 18, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, toUnits(tc.raw, tc.decimals), 1e-9)
		})
	}
}
