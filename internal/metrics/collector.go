// Package metrics subscribes to arb-engine events and builds the in-memory
// trade history, cumulative P&L curve, and latency distribution the
// dashboard/backtest tooling reads. It also mirrors its counters into a
// Prometheus registry for scraping (additive instrumentation, not a
// replacement for the query methods below).
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// Collector is the arbitrage engine's metrics sink. It is safe for
// concurrent use; OnEngineEvent is meant to be registered directly with
// Engine.OnEvent.
type Collector struct {
	mu sync.Mutex

	maxLatencySamples int

	matchesFound     int64
	signalsGenerated int64
	tradesSized      int64
	tradesExecuted   int64
	tradesFailed     int64
	tradesSkipped    int64
	riskRejected     int64
	engineStarts     int64
	engineStops      int64

	trades    []TradeRecord
	categorys map[types.Category]*CategoryStats
	pnlCurve  []PnLPoint
	cumPnL    decimal.Decimal
	latencies []LatencySample

	prom *promMetrics
}

// NewCollector builds a collector bounded by cfg's latency-sample cap, with
// an optional Prometheus mirror enabled per cfg.PrometheusEnabled.
func NewCollector(cfg config.MetricsConfig) *Collector {
	maxSamples := cfg.MaxLatencySamples
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	c := &Collector{
		maxLatencySamples: maxSamples,
		categorys:         make(map[types.Category]*CategoryStats),
		cumPnL:            decimal.Zero,
	}
	if cfg.PrometheusEnabled {
		c.prom = newPromMetrics()
	}
	return c
}

// Registry exposes the Prometheus registry for an HTTP /metrics handler, or
// nil if Prometheus export is disabled.
func (c *Collector) Registry() *promRegistry {
	if c.prom == nil {
		return nil
	}
	return c.prom.registry
}

// OnEngineEvent is the callback registered with the arb engine's event
// stream. It increments the counter for evt.Type and, for
// TRADE_EXECUTED/TRADE_FAILED, extracts a TradeRecord and updates every
// derived aggregate.
func (c *Collector) OnEngineEvent(evt types.EngineEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch evt.Type {
	case types.EvtMatchFound:
		c.matchesFound++
	case types.EvtSignalGenerated:
		c.signalsGenerated++
	case types.EvtTradeSized:
		c.tradesSized++
	case types.EvtTradeExecuted:
		c.tradesExecuted++
	case types.EvtTradeFailed:
		c.tradesFailed++
	case types.EvtTradeSkipped:
		c.tradesSkipped++
	case types.EvtRiskRejected:
		c.riskRejected++
	case types.EvtEngineStarted:
		c.engineStarts++
	case types.EvtEngineStopped:
		c.engineStops++
	}
	if c.prom != nil {
		c.prom.observeCounter(evt.Type)
	}

	if evt.Type != types.EvtTradeExecuted && evt.Type != types.EvtTradeFailed {
		return
	}
	if evt.Result == nil {
		return
	}
	c.recordTradeLocked(*evt.Result)
}

func (c *Collector) recordTradeLocked(result types.ExecutionResult) {
	action := result.Action
	signal := action.Signal
	match := signal.Match
	event := match.Event

	rec := TradeRecord{
		Category:        match.Opportunity.Category,
		TokenID:         action.TokenID,
		Side:            action.Side,
		RequestedPrice:  action.Price,
		RequestedSize:   action.Size,
		FillPrice:       result.FillPrice,
		FillSize:        result.FillSize,
		HasFill:         result.HasFill,
		EstimatedProfit: action.EstimatedProfitUSD,
		Edge:            signal.Edge,
		Confidence:      signal.Confidence,
		Success:         result.Success,
		OpportunityDepthUSD: match.Opportunity.DepthUSD,
		ReleasedAt:      event.ReleasedAt,
		ReceivedAt:      event.ReceivedAt,
		ExecutedAt:      result.ExecutedAt,
	}
	c.trades = append(c.trades, rec)

	stats, ok := c.categorys[rec.Category]
	if !ok {
		stats = &CategoryStats{TotalProfit: decimal.Zero, TotalVolume: decimal.Zero}
		c.categorys[rec.Category] = stats
	}
	stats.Total++
	volume := rec.RequestedPrice.Mul(rec.RequestedSize)
	stats.TotalVolume = stats.TotalVolume.Add(volume)

	var delta decimal.Decimal
	if rec.Success {
		stats.Wins++
		stats.TotalProfit = stats.TotalProfit.Add(rec.EstimatedProfit)
		delta = rec.EstimatedProfit
	} else {
		stats.Losses++
		// Open Question (spec §9): failure is modeled as the worst-case
		// loss of the full requested notional, not zero or exclusion.
		delta = volume.Neg()
		stats.TotalProfit = stats.TotalProfit.Add(delta)
	}
	c.cumPnL = c.cumPnL.Add(delta)
	c.pnlCurve = append(c.pnlCurve, PnLPoint{
		Timestamp:  result.ExecutedAt,
		Cumulative: c.cumPnL,
		Delta:      delta,
	})
	if c.prom != nil {
		c.prom.observePnL(c.cumPnL)
	}

	if !rec.ReleasedAt.IsZero() && !rec.ExecutedAt.IsZero() && rec.ExecutedAt.After(rec.ReleasedAt) {
		sample := LatencySample{
			Timestamp:  rec.ExecutedAt,
			Total:      rec.ExecutedAt.Sub(rec.ReleasedAt),
			FeedLag:    rec.ReceivedAt.Sub(rec.ReleasedAt),
			Processing: rec.ExecutedAt.Sub(rec.ReceivedAt),
		}
		c.latencies = append(c.latencies, sample)
		if len(c.latencies) > c.maxLatencySamples {
			c.latencies = c.latencies[len(c.latencies)-c.maxLatencySamples:]
		}
		if c.prom != nil {
			c.prom.observeLatency(sample.Total)
		}
	}
}

// Summary returns the counters and top-line stats.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Summary{
		MatchesFound:     c.matchesFound,
		SignalsGenerated: c.signalsGenerated,
		TradesSized:      c.tradesSized,
		TradesExecuted:   c.tradesExecuted,
		TradesFailed:     c.tradesFailed,
		TradesSkipped:    c.tradesSkipped,
		RiskRejected:     c.riskRejected,
		EngineStarts:     c.engineStarts,
		EngineStops:      c.engineStops,
		TotalTrades:      len(c.trades),
		CumulativePnL:    c.cumPnL,
	}
}

// Trades returns a defensive copy of the flat trade history.
func (c *Collector) Trades() []TradeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TradeRecord, len(c.trades))
	copy(out, c.trades)
	return out
}

// CategoryStats returns a snapshot of per-category aggregates.
func (c *Collector) CategoryStats() map[types.Category]CategoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[types.Category]CategoryStats, len(c.categorys))
	for k, v := range c.categorys {
		out[k] = *v
	}
	return out
}

// PnLCurve returns a defensive copy of the cumulative P&L series.
func (c *Collector) PnLCurve() []PnLPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PnLPoint, len(c.pnlCurve))
	copy(out, c.pnlCurve)
	return out
}

// LatencyPercentiles returns min/p50/p90/p99/max selected by index position
// on the sorted sample list.
func (c *Collector) LatencyPercentiles() LatencyPercentiles {
	c.mu.Lock()
	totals := make([]time.Duration, len(c.latencies))
	for i, s := range c.latencies {
		totals[i] = s.Total
	}
	c.mu.Unlock()

	if len(totals) == 0 {
		return LatencyPercentiles{}
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i] < totals[j] })
	n := len(totals)
	idx := func(p float64) time.Duration {
		i := int(p * float64(n-1))
		if i < 0 {
			i = 0
		}
		if i >= n {
			i = n - 1
		}
		return totals[i]
	}
	return LatencyPercentiles{
		Min: totals[0],
		P50: idx(0.50),
		P90: idx(0.90),
		P99: idx(0.99),
		Max: totals[n-1],
		N:   n,
	}
}

// LatencyHistogram buckets the total-latency samples into buckets
// equal-width buckets spanning [min, max].
func (c *Collector) LatencyHistogram(buckets int) []HistogramBucket {
	c.mu.Lock()
	totals := make([]time.Duration, len(c.latencies))
	for i, s := range c.latencies {
		totals[i] = s.Total
	}
	c.mu.Unlock()

	if len(totals) == 0 || buckets <= 0 {
		return nil
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i] < totals[j] })
	lo, hi := totals[0], totals[len(totals)-1]
	width := hi - lo
	if width <= 0 {
		return []HistogramBucket{{LowerBound: lo, UpperBound: hi, Count: len(totals)}}
	}
	step := width / time.Duration(buckets)
	out := make([]HistogramBucket, buckets)
	for i := range out {
		out[i] = HistogramBucket{
			LowerBound: lo + time.Duration(i)*step,
			UpperBound: lo + time.Duration(i+1)*step,
		}
	}
	out[buckets-1].UpperBound = hi
	for _, t := range totals {
		idx := int((t - lo) * time.Duration(buckets) / width)
		if idx >= buckets {
			idx = buckets - 1
		}
		out[idx].Count++
	}
	return out
}

// LiquidityStats compares captured (executed) notional against the book
// depth that was available at decision time, success-only.
func (c *Collector) LiquidityStats() LiquidityStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	captured := decimal.Zero
	available := decimal.Zero
	for _, t := range c.trades {
		if !t.Success {
			continue
		}
		captured = captured.Add(t.FillPrice.Mul(t.FillSize))
	}
	for _, t := range c.trades {
		if t.Success {
			available = available.Add(t.OpportunityDepthUSD)
		}
	}
	ratio := decimal.Zero
	if available.IsPositive() {
		ratio = captured.Div(available)
	}
	return LiquidityStats{CapturedUSD: captured, AvailableUSD: available, Ratio: ratio}
}
