package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcomes used as the status label.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
	StatusError  = "error"
)

// Metrics collects Prometheus series for score and rule runs. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	rules        *prometheus.CounterVec
	storeFailure *prometheus.CounterVec
}

// NewMetrics registers the series in reg. Tests pass a fresh registry so
// repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chequeo_operations_total",
				Help: "Number of scoring and rule operations by outcome.",
			},
			[]string{"operation", "status"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chequeo_operation_duration_seconds",
				Help:    "Duration of scoring and rule operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		rules: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chequeo_rules_evaluated_total",
				Help: "Rules evaluated by verdict (satisfied, not_satisfied, skipped, failed).",
			},
			[]string{"verdict"},
		),
		storeFailure: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chequeo_store_delete_failures_total",
				Help: "Individual record deletions that failed during cleanup.",
			},
			[]string{"collection"},
		),
	}
}

// Observe records one finished operation.
func (m *Metrics) Observe(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Rules adds n rules with the given verdict.
func (m *Metrics) Rules(verdict string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rules.WithLabelValues(verdict).Add(float64(n))
}

// DeleteFailures adds n failed deletions for collection.
func (m *Metrics) DeleteFailures(collection string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.storeFailure.WithLabelValues(collection).Add(float64(n))
}

// Status maps an operation error to its status label.
func Status(err error, noData func(error) bool) string {
	switch {
	case err == nil:
		return StatusOK
	case noData != nil && noData(err):
		return StatusNoData
	default:
		return StatusError
	}
}
