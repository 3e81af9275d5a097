package alerts

import (
	"fmt"

	"polyarb/pkg/types"
)

// FormatEngineEvent builds the channel-agnostic alert for an arb engine
// pipeline event.
func FormatEngineEvent(evt types.EngineEvent) AlertMessage {
	fields := map[string]string{}
	title := string(evt.Type)
	body := evt.Reason

	switch {
	case evt.Result != nil:
		r := evt.Result
		fields["token_id"] = r.Action.TokenID
		fields["side"] = string(r.Action.Side)
		fields["price"] = r.Action.Price.String()
		fields["size"] = r.Action.Size.String()
		fields["success"] = fmt.Sprintf("%t", r.Success)
		if r.HasFill {
			fields["fill_price"] = r.FillPrice.String()
			fields["fill_size"] = r.FillSize.String()
		}
		if r.Error != "" {
			fields["error"] = r.Error
		}
		body = fmt.Sprintf("%s %s %s @ %s", r.Action.Side, r.Action.Size, r.Action.TokenID, r.Action.Price)
	case evt.Action != nil:
		a := evt.Action
		fields["token_id"] = a.TokenID
		fields["side"] = string(a.Side)
		fields["price"] = a.Price.String()
		fields["size"] = a.Size.String()
		fields["estimated_profit_usd"] = a.EstimatedProfitUSD.String()
		body = fmt.Sprintf("%s %s %s @ %s, est. profit %s", a.Side, a.Size, a.TokenID, a.Price, a.EstimatedProfitUSD)
	case evt.Signal != nil:
		s := evt.Signal
		fields["direction"] = string(s.Direction)
		fields["edge"] = s.Edge.String()
		fields["confidence"] = s.Confidence.String()
		body = fmt.Sprintf("%s edge=%s confidence=%s", s.Direction, s.Edge, s.Confidence)
	case evt.Match != nil:
		m := evt.Match
		fields["condition_id"] = m.Opportunity.ConditionID
		fields["target_token"] = m.TargetToken
		fields["target_outcome"] = m.TargetOutcome
		body = fmt.Sprintf("%s -> %s (%s)", m.Opportunity.Question, m.TargetOutcome, m.TargetToken)
	}

	return AlertMessage{
		Severity:        engineSeverity(evt.Type),
		Title:           title,
		Body:            body,
		Fields:          fields,
		SourceEventType: title,
		Timestamp:       evt.Timestamp,
		Raw:             evt,
	}
}

// FormatRiskEvent builds the channel-agnostic alert for a risk-subsystem
// event (positions, kill switch, oracle/dispute, whale activity).
func FormatRiskEvent(evt types.RiskEvent) AlertMessage {
	fields := map[string]string{}
	if evt.ConditionID != "" {
		fields["condition_id"] = evt.ConditionID
	}
	if evt.Trigger != "" {
		fields["trigger"] = string(evt.Trigger)
	}
	if !evt.RealizedPnL.IsZero() {
		fields["realized_pnl"] = evt.RealizedPnL.String()
	}
	if evt.Position != nil {
		fields["token_id"] = evt.Position.TokenID
		fields["size"] = evt.Position.Size.String()
	}

	body := evt.Reason
	if body == "" {
		body = string(evt.Type)
	}

	return AlertMessage{
		Severity:        riskSeverity(evt.Type),
		Title:           string(evt.Type),
		Body:            body,
		Fields:          fields,
		SourceEventType: string(evt.Type),
		Timestamp:       evt.Timestamp,
		Raw:             evt,
	}
}

// FormatFeedEvent builds the channel-agnostic alert for a feed lifecycle
// event.
func FormatFeedEvent(feedType types.FeedType, evt types.FeedEvent) AlertMessage {
	fields := map[string]string{
		"feed": string(feedType),
	}
	if evt.Indicator != "" {
		fields["indicator"] = evt.Indicator
	}

	return AlertMessage{
		Severity:        feedSeverity(evt.EventType),
		Title:           fmt.Sprintf("%s/%s", feedType, evt.EventType),
		Body:            fmt.Sprintf("feed %s: %s", feedType, evt.EventType),
		Fields:          fields,
		SourceEventType: string(evt.EventType),
		Timestamp:       evt.ReceivedAt,
		Raw:             evt,
	}
}
