package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

func testSignal(price, edge, depthUSD float64, confidence float64, direction types.Direction) types.Signal {
	return types.Signal{
		Match: types.MatchResult{
			Opportunity: types.MarketOpportunity{
				Question: "test market",
				DepthUSD: decimal.NewFromFloat(depthUSD),
			},
		},
		FairValue:    decimal.NewFromFloat(0.99),
		Confidence:   decimal.NewFromFloat(confidence),
		Direction:    direction,
		Edge:         decimal.NewFromFloat(edge),
		CurrentPrice: decimal.NewFromFloat(price),
	}
}

func TestSizerBaseSize(t *testing.T) {
	cfg := testStrategyConfig()
	sizer := NewSizer(cfg)
	sig := testSignal(0.50, 0.49, 10000, 0.95, types.DirBuy)

	action := sizer.Size(sig)
	if action == nil {
		t.Fatalf("expected a trade action")
	}
	wantTokens := decimal.NewFromFloat(100).Div(decimal.NewFromFloat(0.50))
	if !action.Size.Equal(wantTokens) {
		t.Fatalf("size = %s, want %s", action.Size, wantTokens)
	}
	if action.Side != types.BUY {
		t.Fatalf("side = %s, want BUY", action.Side)
	}
}

func TestSizerCapsAtDepth(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.BaseSizeUSD = 1000
	cfg.MaxSizeUSD = 5000
	sizer := NewSizer(cfg)
	// 20% of 1000 depth = 200, below the 1000 base size.
	sig := testSignal(0.50, 0.49, 1000, 0.95, types.DirBuy)

	action := sizer.Size(sig)
	if action == nil {
		t.Fatalf("expected a trade action")
	}
	wantUSD := decimal.NewFromFloat(200)
	gotUSD := action.Size.Mul(action.Price)
	if !gotUSD.Equal(wantUSD) {
		t.Fatalf("size in USD = %s, want %s (20%% of depth)", gotUSD, wantUSD)
	}
}

func TestSizerRejectsBelowMinProfit(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.MinProfitUSD = 1000
	sizer := NewSizer(cfg)
	sig := testSignal(0.50, 0.01, 10000, 0.95, types.DirBuy)

	if action := sizer.Size(sig); action != nil {
		t.Fatalf("expected nil below the min profit floor")
	}
}

func TestSizerKellySkippedWhenNonPositive(t *testing.T) {
	cfg := testStrategyConfig()
	cfg.UseKelly = true
	cfg.KellyFraction = 0.5
	sizer := NewSizer(cfg)
	// Low confidence, small edge against price: f* should come out <= 0.
	sig := testSignal(0.90, 0.09, 10000, 0.50, types.DirBuy)

	action := sizer.Size(sig)
	if action == nil {
		t.Fatalf("expected a trade action even when Kelly is skipped (falls back to base size)")
	}
}
