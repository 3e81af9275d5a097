package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

var depthCapFraction = decimal.NewFromFloat(0.20)

// Sizer converts a Signal into a risk-unchecked TradeAction, applying the
// Kelly-fraction/max-size/depth caps and the minimum-profit floor.
type Sizer struct {
	cfg config.StrategyConfig
}

// NewSizer builds a sizer from strategy config.
func NewSizer(cfg config.StrategyConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size produces a TradeAction for signal, or nil if the resulting trade's
// estimated profit falls below the configured floor.
func (s *Sizer) Size(signal types.Signal) *types.TradeAction {
	sizeUSD := decimal.NewFromFloat(s.cfg.BaseSizeUSD)

	if s.cfg.UseKelly {
		if kelly, ok := s.kellySizeUSD(signal); ok {
			sizeUSD = kelly
		}
	}

	maxSize := decimal.NewFromFloat(s.cfg.MaxSizeUSD)
	if maxSize.IsPositive() && sizeUSD.GreaterThan(maxSize) {
		sizeUSD = maxSize
	}

	depthCap := signal.Match.Opportunity.DepthUSD.Mul(depthCapFraction)
	if depthCap.IsPositive() && sizeUSD.GreaterThan(depthCap) {
		sizeUSD = depthCap
	}

	if sizeUSD.LessThanOrEqual(decimal.Zero) || signal.CurrentPrice.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	sizeTokens := sizeUSD.Div(signal.CurrentPrice)
	estimatedProfit := sizeTokens.Mul(signal.Edge)
	if estimatedProfit.LessThan(decimal.NewFromFloat(s.cfg.MinProfitUSD)) {
		return nil
	}

	side := types.BUY
	if signal.Direction == types.DirSell {
		side = types.SELL
	}

	orderType := types.OrderTypeFOK
	if s.cfg.DefaultOrderType == string(types.OrderTypeGTC) {
		orderType = types.OrderTypeGTC
	}

	return &types.TradeAction{
		Signal:             signal,
		TokenID:            signal.Match.TargetToken,
		Side:               side,
		Price:              signal.CurrentPrice,
		Size:               sizeTokens,
		OrderType:          orderType,
		MaxSlippage:        decimal.NewFromFloat(s.cfg.MaxSlippage),
		EstimatedProfitUSD: estimatedProfit,
		Reason: fmt.Sprintf("%s %s edge=%s conf=%s",
			side, signal.Match.Opportunity.Question, signal.Edge.StringFixed(4), signal.Confidence.StringFixed(2)),
	}
}

// kellySizeUSD computes the fractional-Kelly size; ok=false if Kelly
// indicates no edge (f* <= 0), in which case the caller keeps base_size_usd.
func (s *Sizer) kellySizeUSD(signal types.Signal) (decimal.Decimal, bool) {
	p := signal.Confidence
	q := decimal.NewFromInt(1).Sub(p)
	price := signal.CurrentPrice
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, false
	}

	var b decimal.Decimal
	if signal.Direction == types.DirBuy {
		b = decimal.NewFromInt(1).Sub(price).Div(price)
	} else {
		b = price.Div(decimal.NewFromInt(1).Sub(price))
	}
	if b.IsZero() {
		return decimal.Zero, false
	}

	fStar := p.Mul(b).Sub(q).Div(b)
	if fStar.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}

	return fStar.Mul(decimal.NewFromFloat(s.cfg.KellyFraction)).Mul(decimal.NewFromFloat(s.cfg.MaxSizeUSD)), true
}
