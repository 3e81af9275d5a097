package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

var fairValue = decimal.NewFromFloat(0.99)

// SignalGenerator evaluates matches into fair-value Signals, rejecting
// stale events and trades below the per-category minimum edge.
type SignalGenerator struct {
	cfg config.StrategyConfig
}

// NewSignalGenerator builds a generator from strategy config.
func NewSignalGenerator(cfg config.StrategyConfig) *SignalGenerator {
	return &SignalGenerator{cfg: cfg}
}

// Evaluate produces a Signal from match, or nil if the match should be
// dropped (stale event, no actionable direction, or edge below minimum).
func (g *SignalGenerator) Evaluate(match types.MatchResult, now time.Time) *types.Signal {
	if g.cfg.MaxStalenessSecs > 0 {
		age := now.Sub(match.Event.ReceivedAt).Seconds()
		if age > g.cfg.MaxStalenessSecs {
			return nil
		}
	}

	confidence := g.confidenceFor(match)

	opp := match.Opportunity
	var direction types.Direction
	var price decimal.Decimal
	switch {
	case fairValue.GreaterThan(opp.BestAsk) && opp.BestAsk.IsPositive():
		direction = types.DirBuy
		price = opp.BestAsk
	case fairValue.LessThan(opp.BestBid) && opp.BestBid.IsPositive():
		direction = types.DirSell
		price = opp.BestBid
	default:
		return nil
	}

	edge := fairValue.Sub(price).Abs()
	minEdge := g.minEdgeFor(opp.Category)
	if edge.LessThan(decimal.NewFromFloat(minEdge)) {
		return nil
	}

	return &types.Signal{
		Match:        match,
		FairValue:    fairValue,
		Confidence:   confidence,
		Direction:    direction,
		Edge:         edge,
		CurrentPrice: price,
	}
}

func (g *SignalGenerator) confidenceFor(match types.MatchResult) decimal.Decimal {
	if match.Event.OutcomeType == types.OutcomeCategorical {
		return decimal.NewFromFloat(0.99)
	}
	switch match.Opportunity.Category {
	case types.CategoryEconomic:
		return decimal.NewFromFloat(0.99)
	case types.CategoryCrypto:
		if cv, ok := match.Event.Metadata["validated"].(bool); ok && cv {
			return decimal.NewFromFloat(0.92)
		}
		return decimal.NewFromFloat(0.85)
	default:
		return decimal.NewFromFloat(0.99)
	}
}

func (g *SignalGenerator) minEdgeFor(category types.Category) float64 {
	var key string
	switch category {
	case types.CategoryEconomic:
		key = "economic_min_edge"
	case types.CategorySports:
		key = "sports_min_edge"
	case types.CategoryCrypto:
		key = "crypto_min_edge"
	}
	if key != "" {
		if override, ok := g.cfg.CategoryOverrides[key]; ok && override.MinEdge > 0 {
			return override.MinEdge
		}
	}
	return g.cfg.MinEdge
}
