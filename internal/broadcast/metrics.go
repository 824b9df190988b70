package broadcast

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the reload broadcast collectors.
type Metrics struct {
	published *prometheus.CounterVec
	received  *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton broadcast metrics.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			published: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "msgxform",
					Subsystem: "broadcast",
					Name:      "published_total",
					Help:      "Reload notices published by result",
				},
				[]string{"result"},
			),
			received: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "msgxform",
					Subsystem: "broadcast",
					Name:      "received_total",
					Help:      "Reload notices received by outcome",
				},
				[]string{"outcome"},
			),
		}
	})
	return metricsInstance
}

// MustRegister registers the collectors with registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.published, m.received)
}

// Init pre-populates label combinations with zero values.
func (m *Metrics) Init() {
	for _, r := range []string{"ok", "error"} {
		m.published.WithLabelValues(r)
	}
	for _, o := range []string{"ok", "error", "self", "malformed"} {
		m.received.WithLabelValues(o)
	}
}
