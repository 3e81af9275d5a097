// Package backtest replays a recorded Scenario through the real
// match/prioritize/signal/size/risk/execute pipeline, using the same
// paper-trading Simulator that drives live dry runs. It exists so a
// strategy or risk-config change can be evaluated against historical
// ground-truth events before it ever reaches a live feed.
package backtest

import (
	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// HistoricalEvent pairs one recorded feed event with the order-book
// snapshots in effect when it arrived, keyed by token ID.
type HistoricalEvent struct {
	FeedEvent  types.FeedEvent
	OrderBooks map[string]types.OrderBook
}

// Scenario is a self-contained replay fixture: the opportunities the
// scanner would have been tracking, plus the ordered sequence of
// historical events to feed through the engine.
type Scenario struct {
	Name          string
	Description   string
	Opportunities map[string]types.MarketOpportunity
	Events        []HistoricalEvent
}

// BacktestConfig wires a Scenario replay to the same strategy and risk
// configuration live trading uses, plus the Simulator's fill model.
type BacktestConfig struct {
	Strategy        config.StrategyConfig
	Risk            config.RiskConfig
	Oracle          config.OracleConfig
	Metrics         config.MetricsConfig
	FillProbability float64
	SlippageBps     int64
}

// BacktestResult is the aggregated outcome of replaying a Scenario.
type BacktestResult struct {
	ScenarioName     string
	TotalEvents      int
	TotalTrades      int
	SuccessfulTrades int64
	FailedTrades     int64
	SignalsGenerated int64
	TradesSkipped    int64
	RiskRejected     int64
	CumulativePnL    decimal.Decimal
	WinRate          float64
	ExecutionResults []types.ExecutionResult
}
