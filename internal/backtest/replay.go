package backtest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"polyarb/internal/engine"
	"polyarb/internal/metrics"
	"polyarb/internal/paper"
	"polyarb/internal/risk"
	"polyarb/pkg/types"
)

// staticSource serves a fixed, mutable set of opportunities to the engine —
// a backtest has no live scanner, only the snapshot a Scenario shipped with
// plus whatever order-book-driven updates replay applies along the way.
type staticSource struct {
	mu            sync.Mutex
	opportunities map[string]types.MarketOpportunity
}

func newStaticSource(seed map[string]types.MarketOpportunity) *staticSource {
	s := &staticSource{opportunities: make(map[string]types.MarketOpportunity, len(seed))}
	for k, v := range seed {
		s.opportunities[k] = v
	}
	return s
}

func (s *staticSource) Opportunities() map[string]types.MarketOpportunity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.MarketOpportunity, len(s.opportunities))
	for k, v := range s.opportunities {
		out[k] = v
	}
	return out
}

// applyBook refreshes every tracked opportunity whose TokenID matches
// tokenID with the book's own best-bid/ask/spread/depth, mirroring the live
// scanner's book-driven refresh.
func (s *staticSource) applyBook(tokenID string, book types.OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for condID, opp := range s.opportunities {
		if opp.TokenID != tokenID {
			continue
		}
		if bid, ok := book.BestBid(); ok {
			opp.BestBid = bid
		}
		if ask, ok := book.BestAsk(); ok {
			opp.BestAsk = ask
		}
		if spread, ok := book.Spread(); ok {
			opp.Spread = spread
			opp.HasSpread = true
		}
		opp.DepthUSD = book.DepthUSD()
		opp.BidDepthUSD = book.BidDepthUSD()
		opp.AskDepthUSD = book.AskDepthUSD()
		opp.LastUpdated = book.Timestamp
		s.opportunities[condID] = opp
	}
}

// simExecClient adapts a bare *paper.Simulator to engine.ExecutionClient —
// unlike paper.Adapter it has no live venue to delegate reads to, since a
// backtest never touches the network.
type simExecClient struct {
	sim *paper.Simulator
}

func (c *simExecClient) PlaceOrder(ctx context.Context, req types.OrderRequest, params types.MarketParams) (*types.ExecutionResult, error) {
	return c.sim.PlaceOrder(req, req.Price), nil
}

func (c *simExecClient) PlaceMarketOrder(ctx context.Context, req types.MarketOrderRequest, params types.MarketParams) (*types.ExecutionResult, error) {
	return c.sim.PlaceMarketOrder(req), nil
}

// staticParams hands out a fixed MarketParams for every token: replay never
// needs real signing material, only tick size and fee rate for sizing.
type staticParams struct {
	params types.MarketParams
}

func (p *staticParams) Get(ctx context.Context, tokenID string, forceRefresh bool, now time.Time) (types.MarketParams, error) {
	mp := p.params
	mp.TokenID = tokenID
	mp.FetchedAt = now
	return mp, nil
}

// Engine replays a Scenario through the live match/prioritize/signal/size/
// risk/execute pipeline, driven by the same Simulator paper trading uses.
type Engine struct {
	cfg      BacktestConfig
	scenario Scenario

	sim     *paper.Simulator
	source  *staticSource
	risk    *risk.Monitor
	metrics *metrics.Collector
	eng     *engine.Engine
}

// New builds a replay engine for scenario under cfg.
func New(cfg BacktestConfig, scenario Scenario, logger *slog.Logger) *Engine {
	sim := paper.NewSimulator(cfg.FillProbability, cfg.SlippageBps)
	source := newStaticSource(scenario.Opportunities)

	riskMonitor := risk.NewMonitor(cfg.Risk, cfg.Oracle, logger, time.Now())
	collector := metrics.NewCollector(cfg.Metrics)

	execClient := &simExecClient{sim: sim}
	params := &staticParams{params: types.MarketParams{TickSize: types.Tick01}}
	executor := engine.NewExecutor(execClient, params)

	eng := engine.New(cfg.Strategy, source, executor, riskMonitor, logger)
	eng.OnEvent(collector.OnEngineEvent)

	return &Engine{
		cfg:      cfg,
		scenario: scenario,
		sim:      sim,
		source:   source,
		risk:     riskMonitor,
		metrics:  collector,
		eng:      eng,
	}
}

// rebaseEvent shifts evt's timestamps to now while preserving the delta
// between ReceivedAt and ReleasedAt, so a historical event doesn't get
// rejected as stale against the engine's wall-clock staleness check.
func rebaseEvent(evt types.FeedEvent, now time.Time) types.FeedEvent {
	delta := evt.ReceivedAt.Sub(evt.ReleasedAt)
	out := evt
	out.ReceivedAt = now
	out.ReleasedAt = now.Add(-delta)
	return out
}

// Run drives every historical event in the scenario through the engine in
// order, syncing the simulator's clock and order books before each one, and
// returns the aggregated result.
func (e *Engine) Run(ctx context.Context) BacktestResult {
	e.eng.Start(ctx)

	var results []types.ExecutionResult
	for _, evt := range e.scenario.Events {
		ts := evt.FeedEvent.ReleasedAt
		if evt.FeedEvent.ReceivedAt.After(ts) {
			ts = evt.FeedEvent.ReceivedAt
		}
		e.sim.SetClock(&ts)

		for tokenID, book := range evt.OrderBooks {
			e.sim.SyncBook(tokenID, book)
			e.source.applyBook(tokenID, book)
		}

		rebased := rebaseEvent(evt.FeedEvent, time.Now())
		results = append(results, e.eng.ProcessEvent(rebased)...)
	}

	e.eng.Stop()
	return e.buildResult(results)
}

func (e *Engine) buildResult(results []types.ExecutionResult) BacktestResult {
	summary := e.metrics.Summary()

	var winRate float64
	if total := summary.TradesExecuted + summary.TradesFailed; total > 0 {
		winRate = float64(summary.TradesExecuted) / float64(total)
	}

	return BacktestResult{
		ScenarioName:     e.scenario.Name,
		TotalEvents:      len(e.scenario.Events),
		TotalTrades:      summary.TotalTrades,
		SuccessfulTrades: summary.TradesExecuted,
		FailedTrades:     summary.TradesFailed,
		SignalsGenerated: summary.SignalsGenerated,
		TradesSkipped:    summary.TradesSkipped,
		RiskRejected:     summary.RiskRejected,
		CumulativePnL:    summary.CumulativePnL,
		WinRate:          winRate,
		ExecutionResults: results,
	}
}
