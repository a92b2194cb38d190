package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quellen-dev/dexscan/internal/domain"
)

func wethUSDC() domain.TokenPair {
	return domain.TokenPair{
		TokenA: domain.Token{Symbol: "WETH", Address: "0xaaa", Decimals: 18},
		TokenB: domain.Token{Symbol: "USDC", Address: "0xbbb", Decimals: 6},
	}
}

func TestPrintScan(t *testing.T) {
	var buf bytes.Buffer
	printer := NewPrinterWriter(&buf)

	printer.PrintScan(domain.ScanReport{
		FinishedAt:   time.Date(2024, 3, 1, 10, 0, 3, 0, time.UTC),
		Duration:     1500 * time.Millisecond,
		PairsScanned: 5,
		PairsSkipped: 1,
		Evaluated:    20,
		TopNetProfit: 0.43,
		Opportunities: []domain.Opportunity{
			{
				Pair:        wethUSDC(),
				BuyVenue:    "uniswap",
				SellVenue:   "sushiswap",
				TradeAmount: 10,
				BuyPrice:    2000,
				SellPrice:   2010,
				GrossProfit: 0.61,
				GasCost:     0.18,
				NetProfit:   0.43,
				Confidence:  0.69,
			},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "scanned 5 pairs (1 skipped), 20 candidates evaluated, 1 kept in 1.5s")
	assert.Contains(t, out, "WETH/USDC")
	assert.Contains(t, out, "uniswap -> sushiswap")
	assert.Contains(t, out, "0.4300")
	assert.Contains(t, out, "4.30%")
	assert.Contains(t, out, "top net profit 0.4300")
	assert.Contains(t, out, "WETH units")
}

func TestPrintScanEmpty(t *testing.T) {
	var buf bytes.Buffer
	printer := NewPrinterWriter(&buf)

	printer.PrintScan(domain.ScanReport{PairsScanned: 3})

	assert.Contains(t, buf.String(), "no opportunities found")
}

func TestPrintPairs(t *testing.T) {
	var buf bytes.Buffer
	printer := NewPrinterWriter(&buf)

	printer.PrintPairs([]domain.DiscoveredPair{
		{
			Pair: wethUSDC(),
			Quotes: map[string]domain.VenueQuote{
				"uniswap":   {Venue: "uniswap"},
				"sushiswap": {Venue: "sushiswap"},
			},
			Metrics:   domain.PairMetrics{TotalLiquidity: 980, LiquidityRatio: 0.96, PriceDeviationPct: 0.2},
			Tier:      domain.TierHigh,
			Score:     21.5,
			Rank:      1,
			CheckedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "1 tracked pairs")
	assert.Contains(t, out, "WETH/USDC")
	assert.Contains(t, out, "high")
	assert.Contains(t, out, "21.50")
	assert.Contains(t, out, "sushiswap,uniswap")
}
