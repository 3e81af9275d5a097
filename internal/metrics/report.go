package metrics

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"polyarb/pkg/types"
)

// RenderSummary writes a human-readable run report to w: the top-line
// counters, per-category breakdown, and latency percentiles. Used by the
// CLI's final report printed on shutdown and by tests; not
// part of the dashboard (out of scope per the engine's own spec).
func (c *Collector) RenderSummary(w io.Writer) {
	summary := c.Summary()
	fmt.Fprintf(w, "run summary — %d trades, cumulative P&L $%s\n",
		summary.TotalTrades, summary.CumulativePnL.StringFixed(2))
	fmt.Fprintf(w, "  matches=%d signals=%d sized=%d executed=%d failed=%d skipped=%d risk_rejected=%d\n",
		summary.MatchesFound, summary.SignalsGenerated, summary.TradesSized,
		summary.TradesExecuted, summary.TradesFailed, summary.TradesSkipped, summary.RiskRejected)

	table := tablewriter.NewWriter(w)
	table.Header("Category", "Trades", "Wins", "Losses", "Profit", "Volume")
	for _, cat := range []types.Category{
		types.CategoryEconomic, types.CategorySports, types.CategoryCrypto,
		types.CategoryPolitics, types.CategoryOther,
	} {
		stats, ok := c.CategoryStats()[cat]
		if !ok {
			continue
		}
		table.Append(
			string(cat),
			fmt.Sprintf("%d", stats.Total),
			fmt.Sprintf("%d", stats.Wins),
			fmt.Sprintf("%d", stats.Losses),
			fmt.Sprintf("$%s", stats.TotalProfit.StringFixed(2)),
			fmt.Sprintf("$%s", stats.TotalVolume.StringFixed(2)),
		)
	}
	table.Render()

	pct := c.LatencyPercentiles()
	if pct.N > 0 {
		fmt.Fprintf(w, "latency (n=%d): min=%s p50=%s p90=%s p99=%s max=%s\n",
			pct.N, pct.Min, pct.P50, pct.P90, pct.P99, pct.Max)
	}

	liq := c.LiquidityStats()
	fmt.Fprintf(w, "liquidity: captured=$%s available=$%s ratio=%s\n",
		liq.CapturedUSD.StringFixed(2), liq.AvailableUSD.StringFixed(2), liq.Ratio.StringFixed(4))
}
