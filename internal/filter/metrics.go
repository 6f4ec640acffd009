package filter

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type filterMetrics struct {
	decisionsTotal  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var (
	metricsInstance *filterMetrics
	metricsOnce     sync.Once
)

func getMetrics() *filterMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &filterMetrics{
			decisionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "openapigw",
					Subsystem: "filter",
					Name:      "decisions_total",
					Help: "Total number of filter decisions " +
						"by outcome and rejection reason",
				},
				[]string{"outcome", "reason"},
			),
			requestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "openapigw",
					Subsystem: "filter",
					Name:      "request_duration_seconds",
					Help:      "Time spent in the filter including the forwarded call",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"outcome"},
			),
		}
	})
	return metricsInstance
}
