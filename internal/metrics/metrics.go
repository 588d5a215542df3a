// Package metrics exposes Prometheus instrumentation for the detection path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Detection bundles detection engine metrics.
// A nil *Detection is valid and records nothing.
type Detection struct {
	EventsTotal    *prometheus.CounterVec
	AlertsTotal    *prometheus.CounterVec
	DefaultsTotal  *prometheus.CounterVec
	OutboxDropped  prometheus.Counter
	EvalDuration   *prometheus.HistogramVec
	TrackedSources *prometheus.GaugeVec
}

// NewDetection constructs detection metrics and registers them on reg.
// Passing a fresh prometheus.NewRegistry() keeps tests isolated.
func NewDetection(reg prometheus.Registerer) *Detection {
	m := &Detection{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_events_total",
				Help: "Total events instrumented by kind",
			},
			[]string{"kind"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_alerts_total",
				Help: "Total alerts emitted by category",
			},
			[]string{"category"},
		),
		DefaultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_defaults_total",
				Help: "Context fields replaced by their safe default",
			},
			[]string{"field", "reason"},
		),
		OutboxDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_outbox_dropped_total",
			Help: "Alert notifications dropped because the outbox was full",
		}),
		EvalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_evaluation_seconds",
				Help:    "Rule evaluation latency in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
			[]string{"kind"},
		),
		TrackedSources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_tracked_sources",
				Help: "Source keys tracked per rule window",
			},
			[]string{"rule"},
		),
	}
	reg.MustRegister(
		m.EventsTotal,
		m.AlertsTotal,
		m.DefaultsTotal,
		m.OutboxDropped,
		m.EvalDuration,
		m.TrackedSources,
	)
	return m
}

// ObserveEvent counts an event and records how long its evaluation took.
func (m *Detection) ObserveEvent(kind string, took time.Duration) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind).Inc()
	m.EvalDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// IncAlert counts an emitted alert.
func (m *Detection) IncAlert(category string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(category).Inc()
}

// IncDefault counts a safe-default substitution.
func (m *Detection) IncDefault(field, reason string) {
	if m == nil {
		return
	}
	m.DefaultsTotal.WithLabelValues(field, reason).Inc()
}

// IncOutboxDropped counts a notification lost to a full outbox.
func (m *Detection) IncOutboxDropped() {
	if m == nil {
		return
	}
	m.OutboxDropped.Inc()
}

// SetTrackedSources publishes the number of keys a rule tracks.
func (m *Detection) SetTrackedSources(rule string, n int) {
	if m == nil {
		return
	}
	m.TrackedSources.WithLabelValues(rule).Set(float64(n))
}
