package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

// PnLTracker holds realized P&L totals with UTC rolling-day semantics: on
// every access, if wall-clock has crossed day_start+86400, today's counters
// reset and day_start advances to the new UTC day start.
type PnLTracker struct {
	mu            sync.Mutex
	realizedTotal decimal.Decimal
	realizedToday decimal.Decimal
	tradesToday   int
	dayStart      time.Time
}

// NewPnLTracker creates a tracker anchored to now's UTC day start.
func NewPnLTracker(now time.Time) *PnLTracker {
	return &PnLTracker{dayStart: utcDayStart(now)}
}

func utcDayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func (p *PnLTracker) maybeRollLocked(now time.Time) {
	start := utcDayStart(now)
	if start.After(p.dayStart) {
		p.dayStart = start
		p.realizedToday = decimal.Zero
		p.tradesToday = 0
	}
}

// Snapshot is a point-in-time read of the tracker's totals.
type Snapshot struct {
	RealizedTotal decimal.Decimal
	RealizedToday decimal.Decimal
	TradesToday   int
	DayStart      time.Time
}

// Snapshot returns the current totals, rolling the day boundary first.
func (p *PnLTracker) Snapshot(now time.Time) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maybeRollLocked(now)
	return Snapshot{
		RealizedTotal: p.realizedTotal,
		RealizedToday: p.realizedToday,
		TradesToday:   p.tradesToday,
		DayStart:      p.dayStart,
	}
}

// RecordFill computes realized P&L for a fill against an existing position
// (nil if none existed before this fill) and mutates the running totals.
//
//   - No existing or same-side fill → 0 realized.
//   - Opposite-side → close_size = min(fill.size, existing.size);
//     realized = (exit-entry)*close_size for a BUY position,
//     (entry-exit)*close_size for a SELL position.
func (p *PnLTracker) RecordFill(result types.ExecutionResult, existing *types.Position, now time.Time) decimal.Decimal {
	realized := decimal.Zero
	if existing != nil && existing.Side != result.Action.Side {
		closeSize := result.FillSize
		if existing.Size.LessThan(closeSize) {
			closeSize = existing.Size
		}
		if existing.Side == types.BUY {
			realized = result.FillPrice.Sub(existing.EntryPrice).Mul(closeSize)
		} else {
			realized = existing.EntryPrice.Sub(result.FillPrice).Mul(closeSize)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.maybeRollLocked(now)
	p.realizedTotal = p.realizedTotal.Add(realized)
	p.realizedToday = p.realizedToday.Add(realized)
	p.tradesToday++
	return realized
}
