package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
		MinEdge:                  0.01,
		MatchConfidenceThreshold: 0.8,
		MaxStalenessSecs:         30,
		BaseSizeUSD:              100,
		MaxSizeUSD:               500,
		MaxSlippage:              0.02,
		DefaultOrderType:         "FOK",
		MinProfitUSD:             0.01,
		MaxTradesPerEvent:        5,
	}
}

func mkMatch(category types.Category, outcomeType types.OutcomeType, bestBid, bestAsk float64, receivedAt time.Time) types.MatchResult {
	return types.MatchResult{
		Event: types.FeedEvent{
			OutcomeType: outcomeType,
			ReceivedAt:  receivedAt,
		},
		Opportunity: types.MarketOpportunity{
			Category: category,
			BestBid:  decimal.NewFromFloat(bestBid),
			BestAsk:  decimal.NewFromFloat(bestAsk),
			DepthUSD: decimal.NewFromFloat(10000),
		},
		Confidence: decimal.NewFromFloat(0.95),
	}
}

func TestSignalBuyWhenFairValueAboveAsk(t *testing.T) {
	gen := NewSignalGenerator(testStrategyConfig())
	now := time.Now()
	match := mkMatch(types.CategorySports, types.OutcomeCategorical, 0.45, 0.50, now)

	sig := gen.Evaluate(match, now)
	if sig == nil {
		t.Fatalf("expected a signal")
	}
	if sig.Direction != types.DirBuy {
		t.Fatalf("direction = %s, want BUY", sig.Direction)
	}
	if !sig.CurrentPrice.Equal(decimal.NewFromFloat(0.50)) {
		t.Fatalf("price = %s, want 0.50 (best ask)", sig.CurrentPrice)
	}
}

func TestSignalRejectsStaleEvent(t *testing.T) {
	gen := NewSignalGenerator(testStrategyConfig())
	now := time.Now()
	match := mkMatch(types.CategorySports, types.OutcomeCategorical, 0.45, 0.50, now.Add(-time.Minute))

	if sig := gen.Evaluate(match, now); sig != nil {
		t.Fatalf("expected nil for a stale event, got %+v", sig)
	}
}

func TestSignalRejectsBelowMinEdge(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.MinEdge = 0.60
	gen := NewSignalGenerator(cfg)
	now := time.Now()
	match := mkMatch(types.CategorySports, types.OutcomeCategorical, 0.45, 0.50, now)

	if sig := gen.Evaluate(match, now); sig != nil {
		t.Fatalf("expected nil below the configured min edge")
	}
}

func TestSignalCryptoCrossValidatedConfidence(t *testing.T) {
	gen := NewSignalGenerator(testStrategyConfig())
	now := time.Now()
	match := mkMatch(types.CategoryCrypto, types.OutcomeNumeric, 0.45, 0.50, now)
	match.Event.Metadata = map[string]any{"validated": true}

	sig := gen.Evaluate(match, now)
	if sig == nil {
		t.Fatalf("expected a signal")
	}
	if !sig.Confidence.Equal(decimal.NewFromFloat(0.92)) {
		t.Fatalf("confidence = %s, want 0.92 for cross-validated crypto", sig.Confidence)
	}
}

func TestSignalCryptoUnvalidatedConfidence(t *testing.T) {
	gen := NewSignalGenerator(testStrategyConfig())
	now := time.Now()
	match := mkMatch(types.CategoryCrypto, types.OutcomeNumeric, 0.45, 0.50, now)

	sig := gen.Evaluate(match, now)
	if sig == nil {
		t.Fatalf("expected a signal")
	}
	if !sig.Confidence.Equal(decimal.NewFromFloat(0.85)) {
		t.Fatalf("confidence = %s, want 0.85 for unvalidated crypto", sig.Confidence)
	}
}
