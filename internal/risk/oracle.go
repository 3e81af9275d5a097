package risk

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// OracleMonitor is ingest-driven: it has no polling loop of its own.
// Callers feed it proposal/dispute/settlement/whale observations as they
// arrive from upstream, and it answers IsDisputed and computes exposure at
// risk against currently-held positions.
type OracleMonitor struct {
	cfg config.OracleConfig
	mu  sync.RWMutex

	proposals map[string]types.OracleProposal // condition_id -> state
	positions *PositionTracker

	listenersMu sync.Mutex
	listeners   []func(types.RiskEvent)
}

// NewOracleMonitor builds a monitor that cross-references the given
// position tracker to compute exposure at risk.
func NewOracleMonitor(cfg config.OracleConfig, positions *PositionTracker) *OracleMonitor {
	return &OracleMonitor{
		cfg:       cfg,
		proposals: make(map[string]types.OracleProposal),
		positions: positions,
	}
}

// OnEvent registers a listener for dispute/whale/settlement events.
func (m *OracleMonitor) OnEvent(cb func(types.RiskEvent)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, cb)
}

func (m *OracleMonitor) emit(evt types.RiskEvent) {
	m.listenersMu.Lock()
	cbs := make([]func(types.RiskEvent), len(m.listeners))
	copy(cbs, m.listeners)
	m.listenersMu.Unlock()
	for _, cb := range cbs {
		func() {
			defer func() { recover() }()
			cb(evt)
		}()
	}
}

// IsDisputed reports whether conditionID currently has an active dispute.
// Satisfies the DisputeChecker interface consumed by QualityFilter.
func (m *OracleMonitor) IsDisputed(conditionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[conditionID]
	return ok && p.State == types.OracleDisputed
}

// Proposal returns the current resolution state for conditionID, if known.
func (m *OracleMonitor) Proposal(conditionID string) (types.OracleProposal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[conditionID]
	return p, ok
}

// IngestProposal records a new resolution proposal.
func (m *OracleMonitor) IngestProposal(conditionID, proposer, outcome string, now time.Time) {
	m.mu.Lock()
	m.proposals[conditionID] = types.OracleProposal{
		ConditionID:     conditionID,
		State:           types.OracleProposed,
		Proposer:        proposer,
		ProposedOutcome: outcome,
		ProposedAt:      now,
	}
	m.mu.Unlock()
}

// IngestDispute marks conditionID disputed and emits DISPUTE_DETECTED with
// the exposure at risk; if a position is held against it, it also emits
// HIGH_ORACLE_RISK.
func (m *OracleMonitor) IngestDispute(conditionID, disputer string, now time.Time) {
	m.mu.Lock()
	p := m.proposals[conditionID]
	p.ConditionID = conditionID
	p.State = types.OracleDisputed
	p.Disputer = disputer
	p.DisputedAt = now
	m.proposals[conditionID] = p
	m.mu.Unlock()

	exposure := m.exposureAtRisk(conditionID)
	m.emit(types.RiskEvent{
		Type:        types.EvtDisputeDetected,
		ConditionID: conditionID,
		RealizedPnL: decimal.Zero,
		Reason:      "dispute raised",
		Detail:      map[string]any{"exposure_at_risk": exposure.String(), "disputer": disputer},
		Timestamp:   now,
	})
	if exposure.IsPositive() {
		m.emit(types.RiskEvent{
			Type:        types.EvtHighOracleRisk,
			ConditionID: conditionID,
			Detail:      map[string]any{"exposure_at_risk": exposure.String()},
			Timestamp:   now,
		})
	}
}

// IngestSettlement finalizes a condition's resolution.
func (m *OracleMonitor) IngestSettlement(conditionID string, now time.Time) {
	m.mu.Lock()
	p := m.proposals[conditionID]
	p.ConditionID = conditionID
	p.State = types.OracleSettled
	p.SettledAt = now
	m.proposals[conditionID] = p
	m.mu.Unlock()

	m.emit(types.RiskEvent{
		Type:        types.EvtSettlement,
		ConditionID: conditionID,
		Timestamp:   now,
	})
}

// IngestWhaleActivity reports a large on-chain move. Alerts are only
// emitted for addresses on the configured allow-list (case-insensitive)
// and moves at or above the configured USD threshold.
func (m *OracleMonitor) IngestWhaleActivity(activity types.WhaleActivity) {
	if !m.isWhaleAllowed(activity.Address) {
		return
	}
	if m.cfg.WhaleMinUSD > 0 && activity.USDValue.LessThan(decimal.NewFromFloat(m.cfg.WhaleMinUSD)) {
		return
	}
	m.emit(types.RiskEvent{
		Type:        types.EvtWhaleActivity,
		ConditionID: activity.ConditionID,
		Detail: map[string]any{
			"address":   activity.Address,
			"usd_value": activity.USDValue.String(),
			"side":      activity.Side,
		},
		Timestamp: activity.ObservedAt,
	})
}

func (m *OracleMonitor) isWhaleAllowed(address string) bool {
	for _, a := range m.cfg.WhaleAllowList {
		if strings.EqualFold(a, address) {
			return true
		}
	}
	return false
}

// exposureAtRisk sums the USD notional of every open position whose token
// resolves under conditionID.
func (m *OracleMonitor) exposureAtRisk(conditionID string) decimal.Decimal {
	if m.positions == nil {
		return decimal.Zero
	}
	return m.positions.ExposureUSD(conditionID)
}
