package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for transform and reload operations.
type Metrics struct {
	transformsTotal   *prometheus.CounterVec
	transformDuration *prometheus.HistogramVec
	evalErrorsTotal   *prometheus.CounterVec
	reloadsTotal      *prometheus.CounterVec
	reloadDuration    prometheus.Histogram
	specsLoaded       prometheus.Gauge
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton engine metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			transformsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "msgxform",
					Subsystem: "engine",
					Name:      "transforms_total",
					Help:      "Total number of transform calls by outcome",
				},
				[]string{"direction", "result"},
			),
			transformDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "msgxform",
					Subsystem: "engine",
					Name:      "transform_duration_seconds",
					Help:      "Duration of matched transforms in seconds",
					Buckets: []float64{
						.0001, .0005, .001, .005,
						.01, .025, .05, .1,
					},
				},
				[]string{"direction"},
			),
			evalErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "msgxform",
					Subsystem: "engine",
					Name:      "eval_errors_total",
					Help:      "Total number of evaluation-phase errors by kind",
				},
				[]string{"direction", "kind"},
			),
			reloadsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "msgxform",
					Subsystem: "engine",
					Name:      "reloads_total",
					Help:      "Total number of load and reload attempts",
				},
				[]string{"result"},
			),
			reloadDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "msgxform",
					Subsystem: "engine",
					Name:      "reload_duration_seconds",
					Help:      "Duration of reloads in seconds",
					Buckets:   prometheus.DefBuckets,
				},
			),
			specsLoaded: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "msgxform",
					Subsystem: "engine",
					Name:      "specs_loaded",
					Help:      "Number of distinct id@version specs in the active snapshot",
				},
			),
		}
	})
	return metricsInstance
}

// MustRegister registers the engine collectors with registry. promauto
// registers with the default registry, while the admin server serves
// /metrics from a custom one.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.transformsTotal,
		m.transformDuration,
		m.evalErrorsTotal,
		m.reloadsTotal,
		m.reloadDuration,
		m.specsLoaded,
	)
}

// Init pre-initializes label combinations with zero values so the series
// are exported before the first transform. It is idempotent.
func (m *Metrics) Init() {
	for _, dir := range []string{"request", "response"} {
		for _, result := range []string{resultSuccess, resultError, resultPassthrough} {
			m.transformsTotal.WithLabelValues(dir, result)
		}
		m.transformDuration.WithLabelValues(dir)
		for _, kind := range []string{"ExpressionEvalError", "EvalBudgetExceededError", "InputSchemaViolation"} {
			m.evalErrorsTotal.WithLabelValues(dir, kind)
		}
	}
	for _, result := range []string{"success", "failure"} {
		m.reloadsTotal.WithLabelValues(result)
	}
}

func (m *Metrics) recordTransform(direction, result string) {
	m.transformsTotal.WithLabelValues(direction, result).Inc()
}

func (m *Metrics) recordEvalError(direction, kind string) {
	m.evalErrorsTotal.WithLabelValues(direction, kind).Inc()
}

func (m *Metrics) recordReload(ok bool, seconds float64, specs int) {
	m.reloadDuration.Observe(seconds)
	if !ok {
		m.reloadsTotal.WithLabelValues("failure").Inc()
		return
	}
	m.reloadsTotal.WithLabelValues("success").Inc()
	m.specsLoaded.Set(float64(specs))
}
