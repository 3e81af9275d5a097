package main

import (
	"bytes"
	"context"
	"time"

	"polyarb/internal/alerts"
	"polyarb/internal/engine"
	"polyarb/internal/feeds"
	"polyarb/internal/metrics"
	"polyarb/internal/risk"
	"polyarb/pkg/types"
)

// wireAlerts registers the dispatcher against every event source so engine,
// risk, and feed events are formatted and routed under severity/throttle
// policy as they occur.
func wireAlerts(eng *engine.Engine, riskMonitor *risk.Monitor, economicFeed, sportsFeed, cryptoFeed feeds.Feed, dispatcher *alerts.Dispatcher) {
	eng.OnEvent(func(evt types.EngineEvent) {
		dispatcher.Dispatch(context.Background(), alerts.FormatEngineEvent(evt), evt.Timestamp)
	})
	riskMonitor.OnEvent(func(evt types.RiskEvent) {
		dispatcher.Dispatch(context.Background(), alerts.FormatRiskEvent(evt), time.Now())
	})
	for _, f := range []feeds.Feed{economicFeed, sportsFeed, cryptoFeed} {
		feedType := f.Type()
		f.OnEvent(func(evt types.FeedEvent) {
			dispatcher.Dispatch(context.Background(), alerts.FormatFeedEvent(feedType, evt), evt.ReceivedAt)
		})
	}
}

// renderFinalReport builds the human-readable run summary printed on
// shutdown.
func renderFinalReport(collector *metrics.Collector) string {
	var buf bytes.Buffer
	collector.RenderSummary(&buf)
	return buf.String()
}
