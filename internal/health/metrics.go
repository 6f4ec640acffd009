package health

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for health checks.
type Metrics struct {
	checksTotal    *prometheus.CounterVec
	checkStatus    *prometheus.GaugeVec
	checkDuration  *prometheus.HistogramVec
	dependencyType *prometheus.GaugeVec
}

var (
	healthMetrics     *Metrics
	healthMetricsOnce sync.Once
)

// GetMetrics returns the singleton health metrics instance.
func GetMetrics() *Metrics {
	healthMetricsOnce.Do(func() {
		healthMetrics = &Metrics{
			checksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "openapigw",
					Subsystem: "health",
					Name:      "checks_total",
					Help:      "Total number of health checks performed",
				},
				[]string{"type"},
			),
			checkStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "openapigw",
					Subsystem: "health",
					Name:      "check_status",
					Help:      "Current health check status (1=healthy, 0=unhealthy)",
				},
				[]string{"check"},
			),
			checkDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "openapigw",
					Subsystem: "health",
					Name:      "check_duration_seconds",
					Help:      "Duration of dependency checks",
					Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2},
				},
				[]string{"check"},
			),
			dependencyType: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "openapigw",
					Subsystem: "health",
					Name:      "dependency_up",
					Help:      "Dependency reachability by type (1=up, 0=down)",
				},
				[]string{"check", "type"},
			),
		}
	})
	return healthMetrics
}

func (m *Metrics) record(name, depType string, healthy bool, d time.Duration) {
	v := 0.0
	if healthy {
		v = 1
	}
	m.checkStatus.WithLabelValues(name).Set(v)
	m.dependencyType.WithLabelValues(name, depType).Set(v)
	m.checkDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) setOverall(healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	m.checkStatus.WithLabelValues("overall").Set(v)
}
