package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

func testPriorityCfg() config.StrategyConfig {
	return config.StrategyConfig{
		MaxTradesPerEvent: 2,
		CooldownSecs:      60,
		PriorityWeights: config.PriorityWeights{
			Opportunity: 1,
			Confidence:  1,
			Edge:        1,
			Category:    1,
		},
	}
}

func mkRankMatch(conditionID string, score, bestAsk float64) types.MatchResult {
	return types.MatchResult{
		Opportunity: types.MarketOpportunity{
			ConditionID: conditionID,
			Category:    types.CategoryEconomic,
			Score:       decimal.NewFromFloat(score),
			BestAsk:     decimal.NewFromFloat(bestAsk),
		},
		Confidence: decimal.NewFromFloat(0.9),
	}
}

func TestPrioritizeSortsDescendingAndTruncates(t *testing.T) {
	p := NewPrioritizer(testPriorityCfg())
	now := time.Now()
	matches := []types.MatchResult{
		mkRankMatch("cond-a", 0.3, 0.5),
		mkRankMatch("cond-b", 0.9, 0.5),
		mkRankMatch("cond-c", 0.6, 0.5),
	}

	ranked := p.Prioritize(matches, now)
	if len(ranked) != 2 {
		t.Fatalf("expected truncation to max_trades_per_event=2, got %d", len(ranked))
	}
	if ranked[0].Match.Opportunity.ConditionID != "cond-b" {
		t.Fatalf("expected cond-b (highest score) first, got %s", ranked[0].Match.Opportunity.ConditionID)
	}
	if ranked[0].Rank != 1 || ranked[1].Rank != 2 {
		t.Fatalf("expected 1-indexed ranks, got %d, %d", ranked[0].Rank, ranked[1].Rank)
	}
}

func TestPrioritizeCooldownExcludesCondition(t *testing.T) {
	p := NewPrioritizer(testPriorityCfg())
	now := time.Now()
	p.RecordTrade("cond-a", now)

	matches := []types.MatchResult{mkRankMatch("cond-a", 0.9, 0.5)}
	ranked := p.Prioritize(matches, now.Add(time.Second))
	if len(ranked) != 0 {
		t.Fatalf("expected the cooled-down condition excluded, got %d", len(ranked))
	}

	// After the cooldown expires, it should be eligible again.
	ranked = p.Prioritize(matches, now.Add(61*time.Second))
	if len(ranked) != 1 {
		t.Fatalf("expected the condition eligible again after cooldown expiry, got %d", len(ranked))
	}
}
