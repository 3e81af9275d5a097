package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"polyarb/internal/config"
	"polyarb/internal/risk"
	"polyarb/pkg/types"
)

// OpportunitySource is the subset of the scanner the engine consumes.
type OpportunitySource interface {
	Opportunities() map[string]types.MarketOpportunity
}

// Stats are the engine's running counters.
type Stats struct {
	SignalsGenerated int64
	TradesExecuted   int64
	TradesFailed     int64
	TradesSkipped    int64
	RiskRejected     int64
}

// Engine is the arbitrage pipeline orchestrator: match, prioritize,
// generate a signal, size, risk-check, and execute — one feed event at a
// time.
type Engine struct {
	cfg         config.StrategyConfig
	scanner     OpportunitySource
	prioritizer *Prioritizer
	signals     *SignalGenerator
	sizer       *Sizer
	executor    *Executor
	riskMonitor *risk.Monitor
	logger      *slog.Logger

	turnMu sync.Mutex

	listenersMu sync.Mutex
	listeners   []func(types.EngineEvent)

	running atomic.Bool

	signalsGenerated atomic.Int64
	tradesExecuted   atomic.Int64
	tradesFailed     atomic.Int64
	tradesSkipped    atomic.Int64
	riskRejected     atomic.Int64
}

// New wires the engine from its pipeline stages.
func New(cfg config.StrategyConfig, scanner OpportunitySource, executor *Executor, riskMonitor *risk.Monitor, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:         cfg,
		scanner:     scanner,
		prioritizer: NewPrioritizer(cfg),
		signals:     NewSignalGenerator(cfg),
		sizer:       NewSizer(cfg),
		executor:    executor,
		riskMonitor: riskMonitor,
		logger:      logger.With("component", "engine"),
	}
}

// OnEvent registers a listener for pipeline-stage events.
func (e *Engine) OnEvent(cb func(types.EngineEvent)) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, cb)
}

func (e *Engine) emit(evt types.EngineEvent) {
	e.listenersMu.Lock()
	cbs := make([]func(types.EngineEvent), len(e.listeners))
	copy(cbs, e.listeners)
	e.listenersMu.Unlock()
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("engine event listener panicked", "panic", r)
				}
			}()
			cb(evt)
		}()
	}
}

// Start marks the engine running and emits ENGINE_STARTED.
func (e *Engine) Start(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.emit(types.EngineEvent{Type: types.EvtEngineStarted, Timestamp: time.Now()})
}

// Stop marks the engine stopped and emits ENGINE_STOPPED.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.emit(types.EngineEvent{Type: types.EvtEngineStopped, Timestamp: time.Now()})
}

// OnFeedEvent is the callback registered with every feed. It ignores
// events while stopped and ignores anything but DATA_RELEASED.
func (e *Engine) OnFeedEvent(event types.FeedEvent) {
	if !e.running.Load() {
		return
	}
	if event.EventType != types.DataReleased {
		return
	}
	e.ProcessEvent(event)
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		SignalsGenerated: e.signalsGenerated.Load(),
		TradesExecuted:   e.tradesExecuted.Load(),
		TradesFailed:     e.tradesFailed.Load(),
		TradesSkipped:    e.tradesSkipped.Load(),
		RiskRejected:     e.riskRejected.Load(),
	}
}

// ProcessEvent runs the full match→prioritize→signal→size→risk→execute
// pipeline for event under the turn mutex, guaranteeing at most one event
// in flight at a time.
func (e *Engine) ProcessEvent(event types.FeedEvent) []types.ExecutionResult {
	e.turnMu.Lock()
	defer e.turnMu.Unlock()
	return e.processLocked(event)
}

func (e *Engine) processLocked(event types.FeedEvent) []types.ExecutionResult {
	now := time.Now()
	opportunities := opportunitySlice(e.scanner.Opportunities())

	matches := Match(event, opportunities, e.cfg.MatchConfidenceThreshold)
	if len(matches) == 0 {
		return nil
	}

	for _, m := range matches {
		e.emit(types.EngineEvent{Type: types.EvtMatchFound, Match: &m, Timestamp: now})
	}

	ranked := e.prioritizer.Prioritize(matches, now)

	var results []types.ExecutionResult
	for _, rm := range ranked {
		result, ok := e.processMatch(rm.Match, now)
		if ok {
			results = append(results, result)
			e.prioritizer.RecordTrade(rm.Match.Opportunity.ConditionID, now)
		}
	}
	return results
}

func (e *Engine) processMatch(match types.MatchResult, now time.Time) (types.ExecutionResult, bool) {
	signal := e.signals.Evaluate(match, now)
	if signal == nil {
		e.tradesSkipped.Add(1)
		e.emit(types.EngineEvent{Type: types.EvtTradeSkipped, Match: &match, Reason: "no signal", Timestamp: now})
		return types.ExecutionResult{}, false
	}
	e.signalsGenerated.Add(1)
	e.emit(types.EngineEvent{Type: types.EvtSignalGenerated, Signal: signal, Timestamp: now})

	action := e.sizer.Size(*signal)
	if action == nil {
		e.tradesSkipped.Add(1)
		e.emit(types.EngineEvent{Type: types.EvtTradeSkipped, Signal: signal, Reason: "sizing rejected", Timestamp: now})
		return types.ExecutionResult{}, false
	}
	e.emit(types.EngineEvent{Type: types.EvtTradeSized, Action: action, Timestamp: now})

	verdict := e.riskMonitor.CheckTrade(*action, now)
	if !verdict.Approved {
		e.riskRejected.Add(1)
		e.emit(types.EngineEvent{Type: types.EvtRiskRejected, Action: action, Reason: verdict.Reason, Timestamp: now})
		return types.ExecutionResult{}, false
	}

	ctx := context.Background()
	result := e.executor.Execute(ctx, *action, now)
	if result.Success {
		e.tradesExecuted.Add(1)
		e.riskMonitor.RecordFill(result, now)
		e.emit(types.EngineEvent{Type: types.EvtTradeExecuted, Result: &result, Timestamp: now})
	} else {
		e.tradesFailed.Add(1)
		e.riskMonitor.RecordFill(result, now)
		e.emit(types.EngineEvent{Type: types.EvtTradeFailed, Result: &result, Reason: result.Error, Timestamp: now})
	}
	return result, true
}

func opportunitySlice(m map[string]types.MarketOpportunity) []types.MarketOpportunity {
	out := make([]types.MarketOpportunity, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
