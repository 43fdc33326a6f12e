// Package metrics provides Prometheus metrics for the chat pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcome labels.
const (
	OutcomeOK               = "ok"
	OutcomeQuotaRejected    = "quota_rejected"
	OutcomeFileRejected     = "file_rejected"
	OutcomeGenerationFailed = "generation_failed"
	OutcomeStoreFailed      = "store_failed"
)

// Metrics holds all Prometheus metrics for the chat pipeline.
type Metrics struct {
	TurnsTotal         *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	QuotaDecrements    prometheus.Counter
}

// New creates and registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "personadesk_chat_turns_total",
				Help: "Total number of chat turn attempts by outcome",
			},
			[]string{"outcome"},
		),
		GenerationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "personadesk_generation_duration_seconds",
				Help:    "Duration of generation calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		QuotaDecrements: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "personadesk_quota_decrements_total",
				Help: "Total number of successful quota decrements",
			},
		),
	}
}

// ObserveTurn records a turn outcome. Safe on a nil receiver so
// callers without metrics wiring can pass nil.
func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGeneration records a generation call duration in seconds.
func (m *Metrics) ObserveGeneration(seconds float64) {
	if m == nil {
		return
	}
	m.GenerationDuration.Observe(seconds)
}

// ObserveQuotaDecrement records one successful decrement.
func (m *Metrics) ObserveQuotaDecrement() {
	if m == nil {
		return
	}
	m.QuotaDecrements.Inc()
}
