package risk

import (
	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// DisputeChecker answers whether a condition currently has an active dispute.
// Satisfied by *OracleMonitor.
type DisputeChecker interface {
	IsDisputed(conditionID string) bool
}

// QualityFilter pre-screens opportunities (not individual trades) — it is
// orthogonal to the six trade-level gates in gates.go.
type QualityFilter struct {
	cfg    config.QualityFilterConfig
	oracle DisputeChecker
}

// NewQualityFilter builds a filter; oracle may be nil to skip dispute checks.
func NewQualityFilter(cfg config.QualityFilterConfig, oracle DisputeChecker) *QualityFilter {
	return &QualityFilter{cfg: cfg, oracle: oracle}
}

// Rejection names a single failed quality check.
type Rejection struct {
	Reason string
	Detail string
}

// Check returns the first rejection reason, or ok=true if the opportunity
// passes every check.
func (q *QualityFilter) Check(opp types.MarketOpportunity) (Rejection, bool) {
	all := q.CheckAll(opp)
	if len(all) == 0 {
		return Rejection{}, true
	}
	return all[0], false
}

// CheckAll returns every failed check, for diagnostics.
func (q *QualityFilter) CheckAll(opp types.MarketOpportunity) []Rejection {
	var out []Rejection

	if opp.Market.Flagged {
		out = append(out, Rejection{Reason: "MARKET_FLAGGED"})
	}
	if opp.Market.Closed {
		out = append(out, Rejection{Reason: "MARKET_CLOSED"})
	}
	if !opp.Market.Active {
		out = append(out, Rejection{Reason: "MARKET_INACTIVE"})
	}
	if !opp.Market.AcceptingOrders {
		out = append(out, Rejection{Reason: "MARKET_PAUSED"})
	}

	if q.cfg.MinBidDepthUSD > 0 && opp.BidDepthUSD.LessThan(decimal.NewFromFloat(q.cfg.MinBidDepthUSD)) {
		out = append(out, Rejection{Reason: "BID_DEPTH_TOO_LOW", Detail: opp.BidDepthUSD.String()})
	}
	if q.cfg.MinAskDepthUSD > 0 && opp.AskDepthUSD.LessThan(decimal.NewFromFloat(q.cfg.MinAskDepthUSD)) {
		out = append(out, Rejection{Reason: "ASK_DEPTH_TOO_LOW", Detail: opp.AskDepthUSD.String()})
	}
	if q.cfg.MinBidDepthUSD <= 0 && q.cfg.MinAskDepthUSD <= 0 && q.cfg.MinDepthUSD > 0 {
		if opp.DepthUSD.LessThan(decimal.NewFromFloat(q.cfg.MinDepthUSD)) {
			out = append(out, Rejection{Reason: "DEPTH_TOO_LOW", Detail: opp.DepthUSD.String()})
		}
	}

	if q.cfg.MaxSpread > 0 && opp.HasSpread && opp.Spread.GreaterThan(decimal.NewFromFloat(q.cfg.MaxSpread)) {
		out = append(out, Rejection{Reason: "SPREAD_TOO_WIDE", Detail: opp.Spread.String()})
	}

	if q.oracle != nil && q.oracle.IsDisputed(opp.ConditionID) {
		out = append(out, Rejection{Reason: "ACTIVE_DISPUTE"})
	}

	if q.cfg.MaxFeeRateBps > 0 && opp.FeeRateBps > q.cfg.MaxFeeRateBps {
		out = append(out, Rejection{Reason: "FEE_RATE_TOO_HIGH"})
	}

	return out
}
