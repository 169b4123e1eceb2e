// Package metrics exposes the server's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glazeware/glaze/internal/interp"
)

// Metrics bundles all collectors on a private registry so multiple server
// instances (tests included) never fight over collector registration.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ScriptDuration  *prometheus.HistogramVec
	RenderDuration  prometheus.Histogram
	Rebuilds        prometheus.Counter
	ReloadsSent     prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glaze_requests_total",
		Help: "Handled HTTP requests by status code.",
	}, []string{"status"})

	m.RequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "glaze_request_duration_seconds",
		Help:    "Full request pipeline latency.",
		Buckets: prometheus.DefBuckets,
	})

	m.ScriptDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "glaze_script_duration_seconds",
		Help:    "Component script call latency by job kind.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"kind"})

	m.RenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "glaze_render_duration_seconds",
		Help:    "Page render latency.",
		Buckets: prometheus.DefBuckets,
	})

	m.Rebuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "glaze_rebuilds_total",
		Help: "Registry and template rebuilds triggered by file changes.",
	})

	m.ReloadsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "glaze_reload_broadcasts_total",
		Help: "Live-reload broadcasts sent to connected clients.",
	})

	inExecution := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "glaze_script_in_execution",
		Help: "Script executions in flight. Never above 1.",
	}, func() float64 {
		current, _ := interp.ExecutionCounts()
		return float64(current)
	})

	m.registry.MustRegister(
		m.RequestsTotal, m.RequestDuration, m.ScriptDuration,
		m.RenderDuration, m.Rebuilds, m.ReloadsSent, inExecution,
	)
	return m
}

// Handler serves the scrape endpoint for this metrics set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScript records one pool call.
func (m *Metrics) ObserveScript(kind string, elapsed time.Duration) {
	m.ScriptDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
