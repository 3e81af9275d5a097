package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// Monitor is the risk subsystem orchestrator: it composes the six pure
// gates, the position and P&L trackers, the kill switch and the oracle
// monitor into the single entry point the arb engine calls before and
// after every trade.
type Monitor struct {
	cfg config.RiskConfig

	positions *PositionTracker
	pnl       *PnLTracker
	kill      *KillSwitch
	oracle    *OracleMonitor
	quality   *QualityFilter
	logger    *slog.Logger

	listenersMu sync.Mutex
	listeners   []func(types.RiskEvent)
}

// NewMonitor wires the risk subsystem from config.
func NewMonitor(cfg config.RiskConfig, oracleCfg config.OracleConfig, logger *slog.Logger, now time.Time) *Monitor {
	positions := NewPositionTracker()
	oracle := NewOracleMonitor(oracleCfg, positions)
	m := &Monitor{
		cfg:       cfg,
		positions: positions,
		pnl:       NewPnLTracker(now),
		kill:      NewKillSwitch(cfg),
		oracle:    oracle,
		quality:   NewQualityFilter(cfg.QualityFilter, oracle),
		logger:    logger,
	}
	oracle.OnEvent(m.emit)
	return m
}

// Oracle exposes the underlying oracle monitor so feed ingestion can push
// proposals/disputes/settlements/whale activity into it.
func (m *Monitor) Oracle() *OracleMonitor { return m.oracle }

// Quality exposes the opportunity-level quality filter.
func (m *Monitor) Quality() *QualityFilter { return m.quality }

// KillSwitch exposes the kill switch for manual trigger/reset by operators.
func (m *Monitor) KillSwitch() *KillSwitch { return m.kill }

// Positions exposes the position tracker for read-only dashboards.
func (m *Monitor) Positions() *PositionTracker { return m.positions }

// OnEvent registers a listener for risk-subsystem events.
func (m *Monitor) OnEvent(cb func(types.RiskEvent)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, cb)
}

func (m *Monitor) emit(evt types.RiskEvent) {
	m.listenersMu.Lock()
	cbs := make([]func(types.RiskEvent), len(m.listeners))
	copy(cbs, m.listeners)
	m.listenersMu.Unlock()
	for _, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("risk event listener panicked", "panic", r)
				}
			}()
			cb(evt)
		}()
	}
}

// CheckTrade runs the six-gate chain against a candidate action using the
// monitor's current state.
func (m *Monitor) CheckTrade(action types.TradeAction, now time.Time) Verdict {
	snap := m.pnl.Snapshot(now)
	conditionID := action.Signal.Match.Opportunity.ConditionID
	in := GateInputs{
		Action:              action,
		Opportunity:         action.Signal.Match.Opportunity,
		KillSwitchActive:    m.kill.Active(),
		RealizedToday:       snap.RealizedToday,
		ExistingExposureUSD: m.positions.ExposureUSD(conditionID),
		OpenPositionCount:   m.positions.Count(),
	}
	return CheckGates(in, m.cfg)
}

// RecordFill updates positions and P&L for a successful execution, emits
// POSITION_OPENED/POSITION_CLOSED, and evaluates the daily-loss kill
// trigger. Returns the realized P&L from this fill (zero if opening or
// adding to a position).
func (m *Monitor) RecordFill(result types.ExecutionResult, now time.Time) decimal.Decimal {
	if !result.Success || !result.HasFill {
		m.kill.RecordTradeResult(false, now)
		return decimal.Zero
	}

	tokenID := result.Action.TokenID
	existing, hadExisting := m.positions.Get(tokenID)

	var existingPtr *types.Position
	if hadExisting {
		existingPtr = &existing
	}
	realized := m.pnl.RecordFill(result, existingPtr, now)

	applied := m.positions.ApplyFill(result, now)
	conditionID := result.Action.Signal.Match.Opportunity.ConditionID

	switch {
	case applied.Opened:
		m.emit(types.RiskEvent{
			Type:        types.EvtPositionOpened,
			ConditionID: conditionID,
			Position:    &applied.Position,
			Timestamp:   now,
		})
	case applied.Closed:
		m.emit(types.RiskEvent{
			Type:        types.EvtPositionClosed,
			ConditionID: conditionID,
			RealizedPnL: realized,
			Timestamp:   now,
		})
	}

	m.kill.RecordTradeResult(true, now)
	m.maybeTripDailyLoss(now)
	return realized
}

// RecordAPIResult feeds the connectivity kill trigger.
func (m *Monitor) RecordAPIResult(success bool, now time.Time) {
	if m.kill.RecordAPIResult(success, now) {
		m.announceKillSwitch(now)
	}
}

func (m *Monitor) maybeTripDailyLoss(now time.Time) {
	if m.cfg.MaxDailyLossUSD <= 0 {
		return
	}
	snap := m.pnl.Snapshot(now)
	limit := decimal.NewFromFloat(m.cfg.MaxDailyLossUSD).Neg()
	if snap.RealizedToday.LessThan(limit) {
		if m.kill.Trigger(types.TriggerDailyLoss, "daily loss limit breached", now) {
			m.announceKillSwitch(now)
		}
	}
}

func (m *Monitor) announceKillSwitch(now time.Time) {
	state := m.kill.State()
	m.emit(types.RiskEvent{
		Type:      types.EvtKillSwitchTriggered,
		Trigger:   state.Trigger,
		Reason:    state.Reason,
		Timestamp: now,
	})
}

// ResetKillSwitch clears the latch and announces the reset.
func (m *Monitor) ResetKillSwitch(now time.Time) {
	m.kill.Reset()
	m.emit(types.RiskEvent{Type: types.EvtKillSwitchReset, Timestamp: now})
}

// ManualKill latches the switch by operator action.
func (m *Monitor) ManualKill(reason string, now time.Time) {
	if m.kill.Trigger(types.TriggerManual, reason, now) {
		m.announceKillSwitch(now)
	}
}

// MonitorState bundles the risk subsystem's current state for
// dashboards/metrics.
type MonitorState struct {
	PnL        Snapshot
	KillSwitch types.KillSwitchState
	Positions  map[string]types.Position
}

// State returns a full point-in-time snapshot of the risk subsystem.
func (m *Monitor) State(now time.Time) MonitorState {
	return MonitorState{
		PnL:        m.pnl.Snapshot(now),
		KillSwitch: m.kill.State(),
		Positions:  m.positions.Snapshot(),
	}
}
