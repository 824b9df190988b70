package proxy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// proxyMetrics contains Prometheus metrics for upstream round trips.
type proxyMetrics struct {
	errorsTotal      *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
	transformsTotal  *prometheus.CounterVec
}

var (
	proxyMetricsInstance *proxyMetrics
	proxyMetricsOnce     sync.Once
)

// initProxyMetrics initializes the singleton with the given registry, or
// the default registerer when registry is nil. Later calls are no-ops.
func initProxyMetrics(registry *prometheus.Registry) {
	proxyMetricsOnce.Do(func() {
		var registerer prometheus.Registerer = prometheus.DefaultRegisterer
		if registry != nil {
			registerer = registry
		}
		factory := promauto.With(registerer)
		proxyMetricsInstance = &proxyMetrics{
			errorsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "msgxform",
					Subsystem: "proxy",
					Name:      "errors_total",
					Help:      "Total number of proxy errors by type",
				},
				[]string{"error_type"},
			),
			upstreamDuration: factory.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "msgxform",
					Subsystem: "proxy",
					Name:      "upstream_duration_seconds",
					Help:      "Duration of upstream round trips",
					Buckets: []float64{
						.001, .005, .01, .025,
						.05, .1, .25, .5,
						1, 2.5, 5, 10,
					},
				},
			),
			transformsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "msgxform",
					Subsystem: "proxy",
					Name:      "transforms_total",
					Help:      "Proxied messages by direction and transform outcome",
				},
				[]string{"direction", "result"},
			),
		}
	})
}

// initProxyVecMetrics pre-populates label combinations with zero values.
func initProxyVecMetrics() {
	m := getProxyMetrics()
	for _, et := range []string{"bad_gateway", "timeout", "circuit_open", "body_too_large"} {
		m.errorsTotal.WithLabelValues(et)
	}
	for _, dir := range []string{"request", "response"} {
		for _, result := range []string{"passthrough", "success", "error"} {
			m.transformsTotal.WithLabelValues(dir, result)
		}
	}
}

// getProxyMetrics returns the singleton, lazily registering with the
// default registerer.
func getProxyMetrics() *proxyMetrics {
	initProxyMetrics(nil)
	return proxyMetricsInstance
}

// InitMetrics registers the proxy metrics with registry and pre-populates
// their label combinations. It must run before the first proxied request
// to take effect.
func InitMetrics(registry *prometheus.Registry) {
	initProxyMetrics(registry)
	initProxyVecMetrics()
}
