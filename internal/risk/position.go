package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

// PositionTracker maintains the open-position map keyed by token ID.
//
// Invariant: every open position has Size > 0; same-side fills update the
// weighted-average entry price; opposite-side fills reduce size and delete
// at zero.
type PositionTracker struct {
	mu        sync.RWMutex
	positions map[string]types.Position
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{positions: make(map[string]types.Position)}
}

// Get returns the current position for tokenID, if any.
func (t *PositionTracker) Get(tokenID string) (types.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[tokenID]
	return p, ok
}

// Snapshot returns a defensive copy of every open position.
func (t *PositionTracker) Snapshot() map[string]types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]types.Position, len(t.positions))
	for k, v := range t.positions {
		out[k] = v
	}
	return out
}

// Count returns the number of open positions.
func (t *PositionTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// ExposureUSD returns the USD notional currently held for conditionID
// across all its tokens.
func (t *PositionTracker) ExposureUSD(conditionID string) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := decimal.Zero
	for _, p := range t.positions {
		if p.ConditionID == conditionID {
			total = total.Add(p.EntryPrice.Mul(p.Size))
		}
	}
	return total
}

// ApplyFillResult describes what happened to the position as a side effect
// of a fill: whether it was opened, updated, or closed, and its state after.
type ApplyFillResult struct {
	Opened   bool
	Closed   bool
	Position types.Position // zero value if Closed
}

// ApplyFill updates the position for result.Action.TokenID given a
// successful execution, per the lifecycle in spec §4.4.3.
func (t *PositionTracker) ApplyFill(result types.ExecutionResult, now time.Time) ApplyFillResult {
	action := result.Action
	tokenID := action.TokenID
	fillPrice := result.FillPrice
	fillSize := result.FillSize

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.positions[tokenID]
	if !ok {
		pos := types.Position{
			TokenID:     tokenID,
			ConditionID: action.Signal.Match.Opportunity.ConditionID,
			Side:        action.Side,
			EntryPrice:  fillPrice,
			Size:        fillSize,
			OpenedAt:    now,
			LastUpdated: now,
		}
		t.positions[tokenID] = pos
		return ApplyFillResult{Opened: true, Position: pos}
	}

	if existing.Side == action.Side {
		totalSize := existing.Size.Add(fillSize)
		weighted := existing.EntryPrice.Mul(existing.Size).Add(fillPrice.Mul(fillSize)).Div(totalSize)
		existing.EntryPrice = weighted
		existing.Size = totalSize
		existing.LastUpdated = now
		t.positions[tokenID] = existing
		return ApplyFillResult{Position: existing}
	}

	// Opposite direction.
	if fillSize.GreaterThanOrEqual(existing.Size) {
		delete(t.positions, tokenID)
		return ApplyFillResult{Closed: true}
	}
	existing.Size = existing.Size.Sub(fillSize)
	existing.LastUpdated = now
	t.positions[tokenID] = existing
	return ApplyFillResult{Position: existing}
}
