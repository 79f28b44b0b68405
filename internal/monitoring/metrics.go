package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes live run telemetry over Prometheus. A nil *Metrics is a
// valid no-op receiver, so the engine can record unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	ticksProcessed prometheus.Counter
	runsCompleted  prometheus.Counter
	marginCalls    prometheus.Counter
	equity         prometheus.Gauge
	runDuration    prometheus.Histogram
}

// NewMetrics creates a metrics set on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ticksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nanpin",
			Name:      "ticks_processed_total",
			Help:      "Number of ticks replayed through the strategy.",
		}),
		runsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nanpin",
			Name:      "runs_completed_total",
			Help:      "Number of backtest runs finished.",
		}),
		marginCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nanpin",
			Name:      "margin_calls_total",
			Help:      "Number of margin calls across all runs.",
		}),
		equity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "nanpin",
			Name:      "equity",
			Help:      "Equity of the most recently processed tick.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nanpin",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of completed runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// TickProcessed counts one replayed tick.
func (m *Metrics) TickProcessed() {
	if m == nil {
		return
	}
	m.ticksProcessed.Inc()
}

// RunCompleted counts one finished run.
func (m *Metrics) RunCompleted() {
	if m == nil {
		return
	}
	m.runsCompleted.Inc()
}

// MarginCall counts one margin call.
func (m *Metrics) MarginCall() {
	if m == nil {
		return
	}
	m.marginCalls.Inc()
}

// SetEquity records the latest equity value.
func (m *Metrics) SetEquity(v float64) {
	if m == nil {
		return
	}
	m.equity.Set(v)
}

// ObserveRunDuration records how long a run took.
func (m *Metrics) ObserveRunDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

// Handler returns the scrape handler for this metrics set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts a metrics HTTP server on addr. It blocks, so callers run it
// in a goroutine.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
