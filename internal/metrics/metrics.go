// Package metrics holds the Prometheus collectors of the unbundle engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	repoLabel     = "repo"
	typeLabel     = "type"
	sideEffectLbl = "side_effect"
)

// Metrics groups the engine's collectors. Construct with New and register
// with Register; a nil *Metrics records nothing.
type Metrics struct {
	processed         *prometheus.CounterVec
	sideEffectFailure *prometheus.CounterVec
	duration          *prometheus.HistogramVec
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unbundle",
			Name:      "processed_total",
			Help:      "Count of successfully processed unbundle requests by strategy",
		}, []string{repoLabel, typeLabel}),
		sideEffectFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unbundle",
			Name:      "side_effect_failures_total",
			Help:      "Count of best-effort side effects (commit logging, bundle preservation) that failed",
		}, []string{repoLabel, sideEffectLbl}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "unbundle",
			Name:      "resolve_duration_seconds",
			Help:      "Time spent applying a resolved unbundle action",
			Buckets:   []float64{0.005, 0.05, 0.5, 5, 50},
		}, []string{repoLabel, typeLabel}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.processed, m.sideEffectFailure, m.duration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Processed counts one successful request of the given strategy.
func (m *Metrics) Processed(repo, strategy string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(repo, strategy).Inc()
}

// SideEffectFailed counts one failed side effect.
func (m *Metrics) SideEffectFailed(repo, sideEffect string) {
	if m == nil {
		return
	}
	m.sideEffectFailure.WithLabelValues(repo, sideEffect).Inc()
}

// Observe records how long a request of the given strategy took,
// whether or not it succeeded.
func (m *Metrics) Observe(repo, strategy string, seconds float64) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(repo, strategy).Observe(seconds)
}

// ProcessedCounter exposes the processed counter for tests and exporters.
func (m *Metrics) ProcessedCounter() *prometheus.CounterVec {
	return m.processed
}

// SideEffectFailureCounter exposes the side effect failure counter.
func (m *Metrics) SideEffectFailureCounter() *prometheus.CounterVec {
	return m.sideEffectFailure
}
