package risk

import (
	"log/slog"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkAction(tokenID string, side types.Side, price, size float64, conditionID string) types.TradeAction {
	return types.TradeAction{
		TokenID: tokenID,
		Side:    side,
		Price:   decimal.NewFromFloat(price),
		Size:    decimal.NewFromFloat(size),
		Signal: types.Signal{
			Match: types.MatchResult{
				Opportunity: types.MarketOpportunity{ConditionID: conditionID},
			},
		},
	}
}

func mkFill(action types.TradeAction, fillPrice, fillSize float64, now time.Time) types.ExecutionResult {
	return types.ExecutionResult{
		Action:     action,
		Success:    true,
		HasFill:    true,
		FillPrice:  decimal.NewFromFloat(fillPrice),
		FillSize:   decimal.NewFromFloat(fillSize),
		ExecutedAt: now,
	}
}

// TestKillSwitchTripsOnClosingLoss reproduces the canonical scenario: a
// position is opened, a closing fill realizes a loss past the daily limit,
// and the next trade check is rejected by the latched kill switch.
func TestKillSwitchTripsOnClosingLoss(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.RiskConfig{MaxDailyLossUSD: 10}
	m := NewMonitor(cfg, config.OracleConfig{}, testLogger(), now)

	open := mkAction("tok1", types.BUY, 0.50, 100, "cond1")
	m.RecordFill(mkFill(open, 0.50, 100, now), now)

	if m.KillSwitch().Active() {
		t.Fatalf("kill switch should not be active after opening a position")
	}

	closeAction := mkAction("tok1", types.SELL, 0.30, 100, "cond1")
	realized := m.RecordFill(mkFill(closeAction, 0.30, 100, now), now)

	wantRealized := decimal.NewFromFloat(-20)
	if !realized.Equal(wantRealized) {
		t.Fatalf("realized = %s, want %s", realized, wantRealized)
	}

	if !m.KillSwitch().Active() {
		t.Fatalf("kill switch should be active after a loss past the daily limit")
	}

	verdict := m.CheckTrade(mkAction("tok2", types.BUY, 0.5, 10, "cond2"), now)
	if verdict.Approved {
		t.Fatalf("expected trade rejected once kill switch is active")
	}
	if verdict.Reason != "KILL_SWITCH_ACTIVE" {
		t.Fatalf("reason = %q, want KILL_SWITCH_ACTIVE", verdict.Reason)
	}
}

func TestGateDailyLossBoundary(t *testing.T) {
	cfg := config.RiskConfig{MaxDailyLossUSD: 10}

	atLimit := GateInputs{RealizedToday: decimal.NewFromFloat(-10)}
	if v := gateDailyLoss(atLimit, cfg); !v.Approved {
		t.Fatalf("exactly at the limit should pass, got rejection %q", v.Reason)
	}

	overLimit := GateInputs{RealizedToday: decimal.NewFromFloat(-10.01)}
	if v := gateDailyLoss(overLimit, cfg); v.Approved {
		t.Fatalf("strictly over the limit should reject")
	}
}

func TestGateSpreadNullSpreadPasses(t *testing.T) {
	cfg := config.RiskConfig{MaxSpread: 0.05}
	in := GateInputs{Opportunity: types.MarketOpportunity{HasSpread: false}}
	if v := gateSpread(in, cfg); !v.Approved {
		t.Fatalf("a null spread should always pass the gate")
	}
}

func TestGateConcentrationRejectsOverLimit(t *testing.T) {
	cfg := config.RiskConfig{BankrollUSD: 1000, MaxBankrollPctPerEvent: 0.1}
	in := GateInputs{
		ExistingExposureUSD: decimal.NewFromFloat(90),
		Action:              mkAction("tok1", types.BUY, 0.5, 30, "cond1"),
	}
	v := gateConcentration(in, cfg)
	if v.Approved {
		t.Fatalf("90 + 15 = 105 exceeds the 100 limit, expected rejection")
	}
	if v.Reason != "POSITION_CONCENTRATION" {
		t.Fatalf("reason = %q", v.Reason)
	}
}

func TestPositionLifecycleSameSideAverages(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewPositionTracker()

	a := mkAction("tok1", types.BUY, 0.40, 100, "cond1")
	tr.ApplyFill(mkFill(a, 0.40, 100, ts), ts)

	b := mkAction("tok1", types.BUY, 0.60, 100, "cond1")
	res := tr.ApplyFill(mkFill(b, 0.60, 100, ts), ts)

	want := decimal.NewFromFloat(0.50)
	if !res.Position.EntryPrice.Equal(want) {
		t.Fatalf("weighted entry = %s, want %s", res.Position.EntryPrice, want)
	}
	if !res.Position.Size.Equal(decimal.NewFromFloat(200)) {
		t.Fatalf("size = %s, want 200", res.Position.Size)
	}
}

func TestPositionLifecycleOppositeSideCloses(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewPositionTracker()

	a := mkAction("tok1", types.BUY, 0.40, 100, "cond1")
	tr.ApplyFill(mkFill(a, 0.40, 100, ts), ts)

	b := mkAction("tok1", types.SELL, 0.55, 100, "cond1")
	res := tr.ApplyFill(mkFill(b, 0.55, 100, ts), ts)

	if !res.Closed {
		t.Fatalf("expected the position to be fully closed")
	}
	if _, ok := tr.Get("tok1"); ok {
		t.Fatalf("closed position should no longer be tracked")
	}
}

func TestPositionLifecyclePartialClose(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewPositionTracker()

	a := mkAction("tok1", types.BUY, 0.40, 100, "cond1")
	tr.ApplyFill(mkFill(a, 0.40, 100, ts), ts)

	b := mkAction("tok1", types.SELL, 0.55, 40, "cond1")
	res := tr.ApplyFill(mkFill(b, 0.55, 40, ts), ts)

	if res.Closed || res.Opened {
		t.Fatalf("a partial opposite-side fill should neither open nor close")
	}
	if !res.Position.Size.Equal(decimal.NewFromFloat(60)) {
		t.Fatalf("size = %s, want 60", res.Position.Size)
	}
	if !res.Position.EntryPrice.Equal(decimal.NewFromFloat(0.40)) {
		t.Fatalf("entry price should be unchanged by a partial close, got %s", res.Position.EntryPrice)
	}
}

func TestPnLRollsAtUTCDayBoundary(t *testing.T) {
	day1 := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 1, 0, 0, 0, time.UTC)

	p := NewPnLTracker(day1)
	a := mkAction("tok1", types.BUY, 0.40, 100, "cond1")
	p.RecordFill(mkFill(a, 0.40, 100, day1), nil, day1)

	b := mkAction("tok1", types.SELL, 0.50, 100, "cond1")
	existing := types.Position{Side: types.BUY, EntryPrice: decimal.NewFromFloat(0.40), Size: decimal.NewFromFloat(100)}
	p.RecordFill(mkFill(b, 0.50, 100, day1), &existing, day1)

	snapBeforeRoll := p.Snapshot(day1)
	if snapBeforeRoll.TradesToday != 2 {
		t.Fatalf("trades today = %d, want 2", snapBeforeRoll.TradesToday)
	}

	snapAfterRoll := p.Snapshot(day2)
	if snapAfterRoll.TradesToday != 0 {
		t.Fatalf("trades today should reset after the UTC day boundary, got %d", snapAfterRoll.TradesToday)
	}
	if !snapAfterRoll.RealizedTotal.Equal(snapBeforeRoll.RealizedTotal) {
		t.Fatalf("realized total must survive the day roll")
	}
}

func TestKillSwitchLatchesOnceNoReTrigger(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := config.RiskConfig{MaxConsecutiveLosses: 2}
	k := NewKillSwitch(cfg)

	if k.RecordTradeResult(false, now) {
		t.Fatalf("one loss should not trip a 2-loss threshold")
	}
	if !k.RecordTradeResult(false, now) {
		t.Fatalf("second consecutive loss should trip the switch")
	}
	state := k.State()
	if state.Trigger != types.TriggerConsecutiveLosses {
		t.Fatalf("trigger = %s, want CONSECUTIVE_LOSSES", state.Trigger)
	}

	// Further losses are no-ops: the trigger/timestamp must not change.
	if k.RecordTradeResult(false, now.Add(time.Minute)) {
		t.Fatalf("kill switch must not re-trigger while already active")
	}
	if k.State().TriggeredAt != state.TriggeredAt {
		t.Fatalf("TriggeredAt must not change once latched")
	}
}

func TestKillSwitchErrorRateWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := config.RiskConfig{ErrorRateWindow: 4, MaxErrorRatePct: 50}
	k := NewKillSwitch(cfg)

	k.RecordTradeResult(true, now)
	k.RecordTradeResult(true, now)
	if k.Active() {
		t.Fatalf("0/2 failures should not trip the switch before the window fills")
	}
	k.RecordTradeResult(false, now)
	tripped := k.RecordTradeResult(false, now)
	if !tripped {
		t.Fatalf("2/4 failures = 50%% should trip at the configured threshold")
	}
}

func TestOracleMonitorIsDisputed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	positions := NewPositionTracker()
	o := NewOracleMonitor(config.OracleConfig{}, positions)

	if o.IsDisputed("cond1") {
		t.Fatalf("unknown condition should not be disputed")
	}
	o.IngestProposal("cond1", "proposer", "YES", now)
	if o.IsDisputed("cond1") {
		t.Fatalf("a plain proposal is not a dispute")
	}
	o.IngestDispute("cond1", "disputer", now)
	if !o.IsDisputed("cond1") {
		t.Fatalf("expected cond1 disputed")
	}
}

func TestOracleMonitorWhaleAllowList(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := config.OracleConfig{WhaleAllowList: []string{"0xABC"}, WhaleMinUSD: 1000}
	o := NewOracleMonitor(cfg, NewPositionTracker())

	var got []types.RiskEvent
	o.OnEvent(func(e types.RiskEvent) { got = append(got, e) })

	o.IngestWhaleActivity(types.WhaleActivity{Address: "0xdef", USDValue: decimal.NewFromFloat(5000), ObservedAt: now})
	if len(got) != 0 {
		t.Fatalf("addresses off the allow-list must not alert")
	}

	o.IngestWhaleActivity(types.WhaleActivity{Address: "0xabc", USDValue: decimal.NewFromFloat(500), ObservedAt: now})
	if len(got) != 0 {
		t.Fatalf("moves under the USD threshold must not alert")
	}

	o.IngestWhaleActivity(types.WhaleActivity{Address: "0xabc", USDValue: decimal.NewFromFloat(5000), ObservedAt: now})
	if len(got) != 1 {
		t.Fatalf("expected exactly one whale alert, got %d", len(got))
	}
}

func TestQualityFilterChecksInOrder(t *testing.T) {
	cfg := config.QualityFilterConfig{MinDepthUSD: 500, MaxSpread: 0.05}
	qf := NewQualityFilter(cfg, nil)

	opp := types.MarketOpportunity{
		Market: types.MarketInfo{Active: true, AcceptingOrders: true},
		DepthUSD: decimal.NewFromFloat(100),
	}
	rej, ok := qf.Check(opp)
	if ok {
		t.Fatalf("expected a rejection for insufficient depth")
	}
	if rej.Reason != "DEPTH_TOO_LOW" {
		t.Fatalf("reason = %q, want DEPTH_TOO_LOW", rej.Reason)
	}
}
