package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HealthMetrics holds Prometheus metrics for health checks.
type HealthMetrics struct {
	probesTotal *prometheus.CounterVec
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

var (
	healthMetricsInstance *HealthMetrics
	healthMetricsOnce     sync.Once
)

// GetHealthMetrics returns the singleton health metrics instance.
func GetHealthMetrics() *HealthMetrics {
	healthMetricsOnce.Do(func() {
		healthMetricsInstance = &HealthMetrics{
			probesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "msgxform",
					Subsystem: "health",
					Name:      "probes_total",
					Help:      "Total number of health probes served",
				},
				[]string{"type"},
			),
			checksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "msgxform",
					Subsystem: "health",
					Name:      "checks_total",
					Help:      "Total number of dependency checks by result",
				},
				[]string{"check", "result"},
			),
			checkStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "msgxform",
					Subsystem: "health",
					Name:      "check_status",
					Help:      "Current check status (1=healthy, 0=unhealthy)",
				},
				[]string{"check"},
			),
		}
	})
	return healthMetricsInstance
}

// MustRegister registers the collectors with registry so they appear on
// the admin /metrics endpoint, which serves a custom registry.
func (m *HealthMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.probesTotal,
		m.checksTotal,
		m.checkStatus,
	)
}

// Init pre-populates the probe labels with zero values.
func (m *HealthMetrics) Init() {
	for _, probe := range []string{"liveness", "readiness", "health"} {
		m.probesTotal.WithLabelValues(probe)
	}
	m.checkStatus.WithLabelValues("overall")
}

func (m *HealthMetrics) recordProbe(probe string) {
	m.probesTotal.WithLabelValues(probe).Inc()
}

func (m *HealthMetrics) recordCheck(check string, healthy bool) {
	result, value := "success", 1.0
	if !healthy {
		result, value = "failure", 0
	}
	m.checksTotal.WithLabelValues(check, result).Inc()
	m.checkStatus.WithLabelValues(check).Set(value)
}

func (m *HealthMetrics) setOverall(healthy bool) {
	value := 0.0
	if healthy {
		value = 1
	}
	m.checkStatus.WithLabelValues("overall").Set(value)
}
