package gas

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRateSource struct {
	rate  float64
	err   error
	calls int
}

func (s *stubRateSource) CurrentRate(_ context.Context) (float64, error) {
	s.calls++
	return s.rate, s.err
}

type stubRefPrice struct{ price float64 }

func (s stubRefPrice) Price() float64 { return s.price }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFeeRate_CachesWithinTTL(t *testing.T) {
	src := &stubRateSource{rate: 25}
	now := time.Unix(1_700_000_000, 0)
	est := New(src, stubRefPrice{2000}, Config{RefreshInterval: 30 * time.Second}, discard()).
		WithClock(func() time.Time { return now })

	ctx := context.Background()
	require.Equal(t, 25.0, est.FeeRate(ctx))
	require.Equal(t, 25.0, est.FeeRate(ctx))
	assert.Equal(t, 1, src.calls, "second call within the TTL must not refetch")

	// Advance past the TTL and change the upstream rate.
	src.rate = 40
	now = now.Add(31 * time.Second)
	require.Equal(t, 40.0, est.FeeRate(ctx))
	assert.Equal(t, 2, src.calls)
}

func TestFeeRate_CapsSpikes(t *testing.T) {
	src := &stubRateSource{rate: 900}
	est := New(src, stubRefPrice{2000}, Config{MaxFeeRateGwei: 100}, discard())

	assert.Equal(t, 100.0, est.FeeRate(context.Background()))
}

func TestFeeRate_FallsBackOnFailure(t *testing.T) {
	src := &stubRateSource{err: errors.New("rpc timeout")}
	est := New(src, stubRefPrice{2000}, Config{DefaultRateGwei: 12}, discard())

	// Nothing ever fetched: serve the default.
	assert.Equal(t, 12.0, est.FeeRate(context.Background()))
}

func TestFeeRate_ServesLastGoodValueOnFailure(t *testing.T) {
	src := &stubRateSource{rate: 20}
	now := time.Unix(1_700_000_000, 0)
	est := New(src, stubRefPrice{2000}, Config{RefreshInterval: 30 * time.Second}, discard()).
		WithClock(func() time.Time { return now })

	ctx := context.Background()
	require.Equal(t, 20.0, est.FeeRate(ctx))

	src.err = errors.New("rpc timeout")
	now = now.Add(time.Minute)
	assert.Equal(t, 20.0, est.FeeRate(ctx), "stale cached value beats the default after a failed refresh")
}

func TestEstimateCost(t *testing.T) {
	src := &stubRateSource{rate: 50}
	est := New(src, stubRefPrice{2000}, Config{BaseGasUnits: 350_000}, discard())

	cost := est.EstimateCost(context.Background(), 1.0)

	// units = 350000 * (1 + 1/10*0.1) = 353500; eth = units*50/1e9
	require.InDelta(t, 353_500.0, cost.GasUnits, 1e-9)
	require.InDelta(t, 353_500.0*50/1e9, cost.ETH, 1e-12)
	assert.InDelta(t, cost.ETH*2000, cost.USD, 1e-9)
	assert.Equal(t, 50.0, cost.RateGwei)
}

func TestEstimateCost_GrowsWithTradeSize(t *testing.T) {
	est := New(&stubRateSource{rate: 50}, stubRefPrice{2000}, Config{}, discard())

	ctx := context.Background()
	small := est.EstimateCost(ctx, 0.5)
	large := est.EstimateCost(ctx, 5)
	assert.Greater(t, large.ETH, small.ETH)
}

func TestSizeMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, sizeMultiplier(0))
	assert.Equal(t, 1.0, sizeMultiplier(-3))
	assert.InDelta(t, 1.05, sizeMultiplier(5), 1e-12)
	assert.InDelta(t, 1.1, sizeMultiplier(10), 1e-12)
}
