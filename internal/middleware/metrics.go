package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the middleware chain.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	bodyLimitRejected prometheus.Counter
	panicsRecovered   prometheus.Counter
}

var (
	middlewareMetrics     *Metrics
	middlewareMetricsOnce sync.Once
)

// GetMetrics returns the singleton middleware metrics instance.
func GetMetrics() *Metrics {
	middlewareMetricsOnce.Do(func() {
		middlewareMetrics = &Metrics{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "openapigw",
					Subsystem: "http",
					Name:      "requests_total",
					Help:      "Total number of HTTP requests by method and status class",
				},
				[]string{"method", "status_class"},
			),
			bodyLimitRejected: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "openapigw",
					Subsystem: "http",
					Name:      "body_limit_rejected_total",
					Help:      "Total number of requests rejected for exceeding the body size limit",
				},
			),
			panicsRecovered: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "openapigw",
					Subsystem: "http",
					Name:      "panics_recovered_total",
					Help:      "Total number of handler panics recovered",
				},
			),
		}
	})
	return middlewareMetrics
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
