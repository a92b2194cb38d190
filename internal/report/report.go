// Package report renders scan and discovery results as console tables for
// the one-shot modes.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/quellen-dev/dexscan/internal/domain"
)

// Printer writes human-readable result tables.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a Printer writing to stdout.
func NewPrinter() *Printer {
	return &Printer{out: os.Stdout}
}

// NewPrinterWriter creates a Printer for tests.
func NewPrinterWriter(w io.Writer) *Printer {
	return &Printer{out: w}
}

// PrintScan renders one scan report: a summary line, then a table of the
// kept opportunities sorted as the report carries them (net profit
// descending).
func (p *Printer) PrintScan(report domain.ScanReport) {
	fmt.Fprintf(p.out, "\n[%s] scanned %d pairs (%d skipped), %d candidates evaluated, %d kept in %s\n",
		report.FinishedAt.Format("15:04:05"),
		report.PairsScanned, report.PairsSkipped,
		report.Evaluated, len(report.Opportunities),
		report.Duration.Round(time.Millisecond),
	)

	if len(report.Opportunities) == 0 {
		fmt.Fprintln(p.out, "  no opportunities found")
		return
	}

	table := tablewriter.NewWriter(p.out)
	table.Header("#", "Pair", "Route", "Size", "Buy", "Sell", "Gross", "Gas", "Net", "Margin", "Conf")

	for i, opp := range report.Opportunities {
		table.Append(
			fmt.Sprintf("%d", i+1),
			opp.Pair.Name(),
			opp.BuyVenue+" -> "+opp.SellVenue,
			fmt.Sprintf("%.4f", opp.TradeAmount),
			fmt.Sprintf("%.6f", opp.BuyPrice),
			fmt.Sprintf("%.6f", opp.SellPrice),
			fmt.Sprintf("%.4f", opp.GrossProfit),
			fmt.Sprintf("%.4f", opp.GasCost),
			fmt.Sprintf("%.4f", opp.NetProfit),
			fmt.Sprintf("%.2f%%", opp.ProfitMarginPct()),
			fmt.Sprintf("%.2f", opp.Confidence),
		)
	}

	table.Render()

	fmt.Fprintf(p.out, "  top net profit %.4f | size and profit in %s units | gas converted at the reference price\n",
		report.TopNetProfit, tradeSymbol(report.Opportunities))
}

// PrintPairs renders the discovery result set in rank order.
func (p *Printer) PrintPairs(pairs []domain.DiscoveredPair) {
	fmt.Fprintf(p.out, "\n%d tracked pairs\n", len(pairs))
	if len(pairs) == 0 {
		return
	}

	table := tablewriter.NewWriter(p.out)
	table.Header("Rank", "Pair", "Tier", "Score", "Liquidity", "Balance", "Dev", "Venues", "Checked")

	for _, pair := range pairs {
		table.Append(
			fmt.Sprintf("%d", pair.Rank),
			pair.Pair.Name(),
			string(pair.Tier),
			fmt.Sprintf("%.2f", pair.Score),
			fmt.Sprintf("%.2f", pair.Metrics.TotalLiquidity),
			fmt.Sprintf("%.2f", pair.Metrics.LiquidityRatio),
			fmt.Sprintf("%.2f%%", pair.Metrics.PriceDeviationPct),
			venueList(pair),
			pair.CheckedAt.Format("15:04:05"),
		)
	}

	table.Render()
}

func venueList(pair domain.DiscoveredPair) string {
	if len(pair.Quotes) == 0 {
		return "-"
	}
	venues := make([]string, 0, len(pair.Quotes))
	for venue := range pair.Quotes {
		venues = append(venues, venue)
	}
	sort.Strings(venues)
	return strings.Join(venues, ",")
}

func tradeSymbol(opps []domain.Opportunity) string {
	if len(opps) == 0 {
		return "trade asset"
	}
	return opps[0].Pair.TokenA.Symbol
}
