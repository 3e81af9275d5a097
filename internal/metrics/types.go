package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

// TradeRecord is a flattened record of one execution attempt, kept for the
// trade history and category/latency aggregation.
type TradeRecord struct {
	Category        types.Category
	TokenID         string
	Side            types.Side
	RequestedPrice  decimal.Decimal
	RequestedSize   decimal.Decimal
	FillPrice       decimal.Decimal
	FillSize        decimal.Decimal
	HasFill         bool
	EstimatedProfit decimal.Decimal
	Edge            decimal.Decimal
	Confidence      decimal.Decimal
	Success         bool
	OpportunityDepthUSD decimal.Decimal
	ReleasedAt      time.Time
	ReceivedAt      time.Time
	ExecutedAt      time.Time
}

// PnLPoint is one sample on the cumulative realized+modeled P&L curve.
type PnLPoint struct {
	Timestamp time.Time
	Cumulative decimal.Decimal
	Delta      decimal.Decimal
}

// LatencySample captures the three latency splits for one executed trade.
type LatencySample struct {
	Timestamp  time.Time
	Total      time.Duration
	FeedLag    time.Duration
	Processing time.Duration
}

// CategoryStats aggregates trade outcomes for one market category.
type CategoryStats struct {
	Total       int
	Wins        int
	Losses      int
	TotalProfit decimal.Decimal
	TotalVolume decimal.Decimal
}

// Summary is the top-line counters plus run stats exposed to dashboards.
type Summary struct {
	MatchesFound     int64
	SignalsGenerated int64
	TradesSized      int64
	TradesExecuted   int64
	TradesFailed     int64
	TradesSkipped    int64
	RiskRejected     int64
	EngineStarts     int64
	EngineStops      int64
	TotalTrades      int
	CumulativePnL    decimal.Decimal
}

// LatencyPercentiles are selected by index position on the sorted sample
// list (min, p50, p90, p99, max).
type LatencyPercentiles struct {
	Min time.Duration
	P50 time.Duration
	P90 time.Duration
	P99 time.Duration
	Max time.Duration
	N   int
}

// LiquidityStats compares executed notional to the liquidity that was
// available on the book at decision time.
type LiquidityStats struct {
	CapturedUSD decimal.Decimal
	AvailableUSD decimal.Decimal
	Ratio       decimal.Decimal
}

// HistogramBucket is one equal-width bucket of the latency histogram.
type HistogramBucket struct {
	LowerBound time.Duration
	UpperBound time.Duration
	Count      int
}
