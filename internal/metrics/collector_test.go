package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

func execResult(success bool, released, received, executed time.Time, profit, price, size decimal.Decimal) types.ExecutionResult {
	return types.ExecutionResult{
		Success:    success,
		FillPrice:  price,
		FillSize:   size,
		HasFill:    success,
		ExecutedAt: executed,
		Action: types.TradeAction{
			TokenID:            "tok",
			Side:               types.BUY,
			Price:              price,
			Size:               size,
			EstimatedProfitUSD: profit,
			Signal: types.Signal{
				Edge:       decimal.NewFromFloat(0.1),
				Confidence: decimal.NewFromFloat(0.9),
				Match: types.MatchResult{
					Event: types.FeedEvent{
						ReleasedAt: released,
						ReceivedAt: received,
					},
					Opportunity: types.MarketOpportunity{
						Category: types.CategoryEconomic,
						DepthUSD: decimal.NewFromInt(5000),
					},
				},
			},
		},
	}
}

func TestCollectorAggregatesTradesByOutcome(t *testing.T) {
	c := NewCollector(config.MetricsConfig{MaxLatencySamples: 10})

	base := time.Now()
	won := execResult(true, base, base.Add(10*time.Millisecond), base.Add(200*time.Millisecond),
		decimal.NewFromInt(98), decimal.NewFromFloat(0.5), decimal.NewFromInt(200))
	c.OnEngineEvent(types.EngineEvent{Type: types.EvtTradeExecuted, Result: &won})

	lost := execResult(false, base, base.Add(5*time.Millisecond), base.Add(150*time.Millisecond),
		decimal.Zero, decimal.NewFromFloat(0.5), decimal.NewFromInt(100))
	c.OnEngineEvent(types.EngineEvent{Type: types.EvtTradeFailed, Result: &lost})

	summary := c.Summary()
	if summary.TotalTrades != 2 {
		t.Fatalf("expected 2 trades, got %d", summary.TotalTrades)
	}
	if summary.TradesExecuted != 1 || summary.TradesFailed != 1 {
		t.Fatalf("unexpected counters: %+v", summary)
	}

	wantPnL := decimal.NewFromInt(98).Sub(decimal.NewFromFloat(0.5).Mul(decimal.NewFromInt(100)))
	if !summary.CumulativePnL.Equal(wantPnL) {
		t.Fatalf("cumulative pnl = %s, want %s", summary.CumulativePnL, wantPnL)
	}

	stats := c.CategoryStats()[types.CategoryEconomic]
	if stats.Total != 2 || stats.Wins != 1 || stats.Losses != 1 {
		t.Fatalf("unexpected category stats: %+v", stats)
	}

	curve := c.PnLCurve()
	if len(curve) != 2 {
		t.Fatalf("expected 2 pnl points, got %d", len(curve))
	}
	if !curve[len(curve)-1].Cumulative.Equal(wantPnL) {
		t.Fatalf("last curve point = %s, want %s", curve[len(curve)-1].Cumulative, wantPnL)
	}
}

func TestCollectorLatencyPercentilesAndHistogram(t *testing.T) {
	c := NewCollector(config.MetricsConfig{MaxLatencySamples: 100})
	base := time.Now()

	for i := 0; i < 10; i++ {
		lat := time.Duration(i+1) * 100 * time.Millisecond
		r := execResult(true, base, base.Add(time.Millisecond), base.Add(lat),
			decimal.NewFromInt(1), decimal.NewFromFloat(0.5), decimal.NewFromInt(10))
		c.OnEngineEvent(types.EngineEvent{Type: types.EvtTradeExecuted, Result: &r})
	}

	pct := c.LatencyPercentiles()
	if pct.N != 10 {
		t.Fatalf("expected 10 samples, got %d", pct.N)
	}
	if pct.Min != 100*time.Millisecond || pct.Max != 1000*time.Millisecond {
		t.Fatalf("unexpected min/max: %v/%v", pct.Min, pct.Max)
	}

	hist := c.LatencyHistogram(5)
	if len(hist) != 5 {
		t.Fatalf("expected 5 buckets, got %d", len(hist))
	}
	total := 0
	for _, b := range hist {
		total += b.Count
	}
	if total != 10 {
		t.Fatalf("histogram counts sum to %d, want 10", total)
	}
}

func TestCollectorLatencySampleCapTrimsFromFront(t *testing.T) {
	c := NewCollector(config.MetricsConfig{MaxLatencySamples: 3})
	base := time.Now()
	for i := 0; i < 5; i++ {
		lat := time.Duration(i+1) * 100 * time.Millisecond
		r := execResult(true, base, base.Add(time.Millisecond), base.Add(lat),
			decimal.NewFromInt(1), decimal.NewFromFloat(0.5), decimal.NewFromInt(10))
		c.OnEngineEvent(types.EngineEvent{Type: types.EvtTradeExecuted, Result: &r})
	}
	pct := c.LatencyPercentiles()
	if pct.N != 3 {
		t.Fatalf("expected cap of 3 samples, got %d", pct.N)
	}
	if pct.Min != 300*time.Millisecond {
		t.Fatalf("expected oldest samples trimmed, min=%v", pct.Min)
	}
}

func TestCollectorLiquidityStats(t *testing.T) {
	c := NewCollector(config.MetricsConfig{})
	base := time.Now()
	r := execResult(true, base, base, base.Add(time.Second),
		decimal.NewFromInt(10), decimal.NewFromFloat(0.5), decimal.NewFromInt(200))
	c.OnEngineEvent(types.EngineEvent{Type: types.EvtTradeExecuted, Result: &r})

	liq := c.LiquidityStats()
	wantCaptured := decimal.NewFromFloat(0.5).Mul(decimal.NewFromInt(200))
	if !liq.CapturedUSD.Equal(wantCaptured) {
		t.Fatalf("captured = %s, want %s", liq.CapturedUSD, wantCaptured)
	}
	if !liq.AvailableUSD.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("available = %s, want 5000", liq.AvailableUSD)
	}
}

func TestRenderSummaryProducesOutput(t *testing.T) {
	c := NewCollector(config.MetricsConfig{})
	var buf bytes.Buffer
	c.RenderSummary(&buf)
	if buf.Len() == 0 {
		t.Fatal("expected non-empty report output")
	}
}

func TestPrometheusMirrorOptional(t *testing.T) {
	c := NewCollector(config.MetricsConfig{PrometheusEnabled: true})
	if c.Registry() == nil {
		t.Fatal("expected a registry when PrometheusEnabled is true")
	}
	base := time.Now()
	r := execResult(true, base, base, base.Add(time.Millisecond),
		decimal.NewFromInt(1), decimal.NewFromFloat(0.5), decimal.NewFromInt(10))
	c.OnEngineEvent(types.EngineEvent{Type: types.EvtTradeExecuted, Result: &r})

	off := NewCollector(config.MetricsConfig{})
	if off.Registry() != nil {
		t.Fatal("expected nil registry when Prometheus export disabled")
	}
}
