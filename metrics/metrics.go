// Package metrics exposes server counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/najoast/courier/comms"
)

const namespace = "courier"

// Metrics holds the server's collectors on a private registry.
// It implements comms.Observer.
type Metrics struct {
	registry *prometheus.Registry

	stored   *prometheus.CounterVec
	appended *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	online   prometheus.Gauge
	limited  prometheus.Counter
	swept    prometheus.Counter
}

var _ comms.Observer = (*Metrics)(nil)

// New registers the collectors, including the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stored_total",
			Help:      "Records appended to the store.",
		}, []string{"kind"}),
		appended: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_append_seconds",
			Help:      "Time taken to append one record.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipient_outcomes_total",
			Help:      "Per-recipient delivery outcomes.",
		}, []string{"kind", "outcome"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_online",
			Help:      "Characters with a live session.",
		}),
		limited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_rate_limited_total",
			Help:      "Input lines refused by the per-session rate limiter.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Sessions disconnected for idling.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stored, m.appended, m.outcomes, m.online, m.limited, m.swept,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordStored(kind comms.Kind, took time.Duration) {
	m.stored.WithLabelValues(string(kind)).Inc()
	m.appended.WithLabelValues(string(kind)).Observe(took.Seconds())
}

func (m *Metrics) RecipientOutcome(kind comms.Kind, outcome comms.Outcome) {
	m.outcomes.WithLabelValues(string(kind), string(outcome)).Inc()
}

// SetOnline records the number of connected characters.
func (m *Metrics) SetOnline(n int) {
	m.online.Set(float64(n))
}

// LineLimited counts one rate-limited input line.
func (m *Metrics) LineLimited() {
	m.limited.Inc()
}

// Swept counts sessions closed by the idle sweeper.
func (m *Metrics) Swept(n int) {
	m.swept.Add(float64(n))
}
