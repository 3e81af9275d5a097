package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"polyarb/pkg/types"
)

// promRegistry is the concrete Prometheus registry type exposed to callers
// that wire up an HTTP handler (promhttp.HandlerFor).
type promRegistry = prometheus.Registry

// promMetrics mirrors the collector's own tallies into Prometheus counters
// and histograms, scoped to a private registry constructed per Collector —
// never the global prometheus.DefaultRegisterer — so tests can build
// multiple collectors without colliding series.
type promMetrics struct {
	registry *promRegistry

	engineEvents *prometheus.CounterVec
	cumPnL       prometheus.Gauge
	latency      prometheus.Histogram
}

func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	p := &promMetrics{
		registry: reg,
		engineEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_engine_events_total",
			Help: "Count of arbitrage engine pipeline events by type.",
		}, []string{"event_type"}),
		cumPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arb_cumulative_pnl_usd",
			Help: "Cumulative modeled P&L in USD across the session.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arb_trade_latency_seconds",
			Help:    "End-to-end latency from ground-truth release to execution.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(p.engineEvents, p.cumPnL, p.latency)
	return p
}

func (p *promMetrics) observeCounter(evtType types.EngineEventType) {
	p.engineEvents.WithLabelValues(string(evtType)).Inc()
}

func (p *promMetrics) observePnL(cum decimal.Decimal) {
	f, _ := cum.Float64()
	p.cumPnL.Set(f)
}

func (p *promMetrics) observeLatency(d time.Duration) {
	p.latency.Observe(d.Seconds())
}
