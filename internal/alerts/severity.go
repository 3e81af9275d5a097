package alerts

import "polyarb/pkg/types"

// engineSeverity maps an arb engine event type to its alert severity.
func engineSeverity(t types.EngineEventType) Severity {
	switch t {
	case types.EvtTradeExecuted, types.EvtEngineStarted, types.EvtEngineStopped:
		return SeverityInfo
	case types.EvtTradeFailed:
		return SeverityWarning
	default:
		return SeverityDebug
	}
}

// riskSeverity maps a risk-subsystem event type (which also carries the
// oracle monitor's events, since it forwards through the same channel) to
// its alert severity.
func riskSeverity(t types.RiskEventType) Severity {
	switch t {
	case types.EvtKillSwitchTriggered, types.EvtDisputeDetected:
		return SeverityCritical
	case types.EvtWhaleActivity, types.EvtHighOracleRisk:
		return SeverityWarning
	case types.EvtKillSwitchReset, types.EvtSettlement:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

// feedSeverity maps a feed lifecycle event type to its alert severity.
func feedSeverity(t types.FeedEventType) Severity {
	switch t {
	case types.FeedDisconnected, types.FeedErrored:
		return SeverityWarning
	default:
		return SeverityDebug
	}
}
