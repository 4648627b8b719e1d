// Package metrics exposes Prometheus metrics for constraint evaluation.
//
// Metrics:
//   - fieldrules_validations_total: evaluations by source and outcome
//   - fieldrules_validation_duration_seconds: evaluation latency by source
//   - fieldrules_constraint_errors_total: failed evaluations by error kind
//   - fieldrules_rules: number of stored rules
//   - fieldrules_checks_pruned_total: checks removed by retention pruning
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lemonberrylabs/fieldrules/pkg/constraint"
)

const namespace = "fieldrules"

// Sources of an evaluation.
const (
	SourceAdHoc = "adhoc"
	SourceRule  = "rule"
)

// Outcomes of an evaluation.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	validationsTotal   *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	errorsTotal        *prometheus.CounterVec
	rules              prometheus.Gauge
	checksPruned       prometheus.Counter
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total number of value validations",
			},
			[]string{"source", "outcome"},
		),

		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validation_duration_seconds",
				Help:      "Duration of value validation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"source"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "constraint_errors_total",
				Help:      "Total number of failed validations by error kind",
			},
			[]string{"kind"},
		),

		rules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules",
			Help:      "Number of stored rules",
		}),

		checksPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_pruned_total",
			Help:      "Total number of checks removed by retention pruning",
		}),
	}

	m.registry.MustRegister(
		m.validationsTotal,
		m.validationDuration,
		m.errorsTotal,
		m.rules,
		m.checksPruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveValidation records one evaluation.
func (m *Metrics) ObserveValidation(source string, res constraint.Result, d time.Duration) {
	if m == nil {
		return
	}

	outcome := OutcomeInvalid
	switch {
	case res.Err != nil:
		outcome = OutcomeError
		m.errorsTotal.WithLabelValues(constraint.DetailOf(res.Err).Kind).Inc()
	case res.Valid:
		outcome = OutcomeValid
	}
	m.validationsTotal.WithLabelValues(source, outcome).Inc()
	m.validationDuration.WithLabelValues(source).Observe(d.Seconds())
}

// SetRules records the number of stored rules.
func (m *Metrics) SetRules(n int) {
	if m == nil {
		return
	}
	m.rules.Set(float64(n))
}

// AddPrunedChecks records checks removed by retention pruning.
func (m *Metrics) AddPrunedChecks(n int) {
	if m == nil {
		return
	}
	m.checksPruned.Add(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
