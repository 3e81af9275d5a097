package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

var categoryWeights = map[types.Category]float64{
	types.CategoryEconomic: 1.0,
	types.CategorySports:   1.0,
	types.CategoryCrypto:   0.9,
	types.CategoryPolitics: 0.8,
	types.CategoryOther:    0.5,
}

// RankedMatch pairs a match with its composite priority score and
// 1-indexed rank within this turn's batch.
type RankedMatch struct {
	Match types.MatchResult
	Score decimal.Decimal
	Rank  int
}

// Prioritizer scores matches, enforces a per-condition cooldown, and caps
// the number of trades taken per feed event.
type Prioritizer struct {
	weights           config.PriorityWeights
	maxTradesPerEvent int
	cooldown          time.Duration

	mu        sync.Mutex
	cooldowns map[string]time.Time // condition_id -> expires_at
}

// NewPrioritizer builds a prioritizer from strategy config. A non-positive
// MaxTradesPerEvent means unbounded (no truncation).
func NewPrioritizer(cfg config.StrategyConfig) *Prioritizer {
	return &Prioritizer{
		weights:           cfg.PriorityWeights,
		maxTradesPerEvent: cfg.MaxTradesPerEvent,
		cooldown:          time.Duration(cfg.CooldownSecs * float64(time.Second)),
		cooldowns:         make(map[string]time.Time),
	}
}

// estimatedEdge derives a rough edge estimate from the best ask alone, used
// only for prioritization (not the signal generator's edge calculation).
func estimatedEdge(bestAsk decimal.Decimal) decimal.Decimal {
	if bestAsk.IsZero() {
		return decimal.Zero
	}
	ceiling := decimal.NewFromFloat(0.99)
	edge := ceiling.Sub(bestAsk).Div(ceiling)
	if edge.IsNegative() {
		return decimal.Zero
	}
	if edge.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return edge
}

func (p *Prioritizer) score(m types.MatchResult) decimal.Decimal {
	catWeight := categoryWeights[m.Opportunity.Category]
	edge := estimatedEdge(m.Opportunity.BestAsk)
	return decimal.NewFromFloat(p.weights.Opportunity).Mul(m.Opportunity.Score).
		Add(decimal.NewFromFloat(p.weights.Confidence).Mul(m.Confidence)).
		Add(decimal.NewFromFloat(p.weights.Edge).Mul(edge)).
		Add(decimal.NewFromFloat(p.weights.Category * catWeight))
}

// RecordTrade stamps conditionID's cooldown, expiring cooldown.
func (p *Prioritizer) RecordTrade(conditionID string, now time.Time) {
	if p.cooldown <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cooldowns[conditionID] = now.Add(p.cooldown)
}

// sweepLocked removes every expired cooldown entry. Caller holds p.mu.
func (p *Prioritizer) sweepLocked(now time.Time) {
	for cond, expiry := range p.cooldowns {
		if !now.Before(expiry) {
			delete(p.cooldowns, cond)
		}
	}
}

func (p *Prioritizer) onCooldown(conditionID string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked(now)
	_, active := p.cooldowns[conditionID]
	return active
}

// Prioritize scores matches, filters out matches whose condition is on
// cooldown, sorts descending by score, and truncates to max_trades_per_event.
func (p *Prioritizer) Prioritize(matches []types.MatchResult, now time.Time) []RankedMatch {
	var eligible []types.MatchResult
	for _, m := range matches {
		if p.onCooldown(m.Opportunity.ConditionID, now) {
			continue
		}
		eligible = append(eligible, m)
	}

	ranked := make([]RankedMatch, len(eligible))
	for i, m := range eligible {
		ranked[i] = RankedMatch{Match: m, Score: p.score(m)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.GreaterThan(ranked[j].Score)
	})

	if p.maxTradesPerEvent > 0 && len(ranked) > p.maxTradesPerEvent {
		ranked = ranked[:p.maxTradesPerEvent]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
