// Package risk implements the pre-trade gates, position and P&L bookkeeping,
// kill switch, oracle/dispute monitor, and market quality filter.
package risk

import (
	"github.com/shopspring/decimal"

	"polyarb/internal/config"
	"polyarb/pkg/types"
)

// Verdict is the result of a single gate or the full gate chain.
type Verdict struct {
	Approved bool
	Reason   string
	Detail   string
}

func approved() Verdict { return Verdict{Approved: true} }

func rejected(reason, detail string) Verdict {
	return Verdict{Approved: false, Reason: reason, Detail: detail}
}

// GateInputs bundles everything the six pure gates need to evaluate a
// candidate trade, without reaching into any subsystem's internal state.
type GateInputs struct {
	Action             types.TradeAction
	Opportunity        types.MarketOpportunity
	KillSwitchActive   bool
	RealizedToday      decimal.Decimal
	ExistingExposureUSD decimal.Decimal
	OpenPositionCount  int
}

// CheckGates runs the six ordered gates and returns the first rejection, or
// an approval if all pass.
func CheckGates(in GateInputs, cfg config.RiskConfig) Verdict {
	if v := gateKillSwitch(in); !v.Approved {
		return v
	}
	if v := gateDailyLoss(in, cfg); !v.Approved {
		return v
	}
	if v := gateConcentration(in, cfg); !v.Approved {
		return v
	}
	if v := gateMaxConcurrent(in, cfg); !v.Approved {
		return v
	}
	if v := gateDepth(in, cfg); !v.Approved {
		return v
	}
	if v := gateSpread(in, cfg); !v.Approved {
		return v
	}
	return approved()
}

func gateKillSwitch(in GateInputs) Verdict {
	if in.KillSwitchActive {
		return rejected("KILL_SWITCH_ACTIVE", "kill switch is latched")
	}
	return approved()
}

// gateDailyLoss rejects if realized_today < -max_daily_loss_usd. Exactly at
// the limit passes (strict inequality on the reject side).
func gateDailyLoss(in GateInputs, cfg config.RiskConfig) Verdict {
	if cfg.MaxDailyLossUSD <= 0 {
		return approved()
	}
	limit := decimal.NewFromFloat(cfg.MaxDailyLossUSD).Neg()
	if in.RealizedToday.LessThan(limit) {
		return rejected("DAILY_LOSS_LIMIT", in.RealizedToday.String())
	}
	return approved()
}

// gateConcentration rejects if existing exposure on the condition plus the
// new action's USD size exceeds bankroll * max_bankroll_pct_per_event.
func gateConcentration(in GateInputs, cfg config.RiskConfig) Verdict {
	if cfg.BankrollUSD <= 0 || cfg.MaxBankrollPctPerEvent <= 0 {
		return approved()
	}
	limit := decimal.NewFromFloat(cfg.BankrollUSD).Mul(decimal.NewFromFloat(cfg.MaxBankrollPctPerEvent))
	newExposure := in.Action.Price.Mul(in.Action.Size)
	total := in.ExistingExposureUSD.Add(newExposure)
	if total.GreaterThan(limit) {
		return rejected("POSITION_CONCENTRATION", total.String())
	}
	return approved()
}

func gateMaxConcurrent(in GateInputs, cfg config.RiskConfig) Verdict {
	if cfg.MaxConcurrentPositions <= 0 {
		return approved()
	}
	if in.OpenPositionCount >= cfg.MaxConcurrentPositions {
		return rejected("MAX_CONCURRENT_POSITIONS", "")
	}
	return approved()
}

func gateDepth(in GateInputs, cfg config.RiskConfig) Verdict {
	if cfg.MinOrderbookDepthUSD <= 0 {
		return approved()
	}
	if in.Opportunity.DepthUSD.LessThan(decimal.NewFromFloat(cfg.MinOrderbookDepthUSD)) {
		return rejected("ORDERBOOK_DEPTH", in.Opportunity.DepthUSD.String())
	}
	return approved()
}

// gateSpread rejects if spread > max_spread; a null spread passes.
func gateSpread(in GateInputs, cfg config.RiskConfig) Verdict {
	if cfg.MaxSpread <= 0 || !in.Opportunity.HasSpread {
		return approved()
	}
	if in.Opportunity.Spread.GreaterThan(decimal.NewFromFloat(cfg.MaxSpread)) {
		return rejected("MAX_SPREAD", in.Opportunity.Spread.String())
	}
	return approved()
}
