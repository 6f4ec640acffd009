package proxy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type proxyMetrics struct {
	errorsTotal     *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
}

var (
	proxyMetricsInstance *proxyMetrics
	proxyMetricsOnce     sync.Once
)

// InitMetrics registers the proxy metrics with registerer, or with the
// default registerer when nil. Later calls are no-ops.
func InitMetrics(registerer prometheus.Registerer) {
	proxyMetricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		factory := promauto.With(registerer)
		proxyMetricsInstance = &proxyMetrics{
			errorsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "openapigw",
					Subsystem: "proxy",
					Name:      "errors_total",
					Help: "Total number of " +
						"forwarding errors",
				},
				[]string{"error_type"},
			),
			backendDuration: factory.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "openapigw",
					Subsystem: "proxy",
					Name: "backend_duration" +
						"_seconds",
					Help: "Time to backend response headers",
					Buckets: []float64{
						.001, .005, .01, .025,
						.05, .1, .25, .5,
						1, 2.5, 5, 10,
					},
				},
				[]string{"status_class"},
			),
		}

		for _, et := range []string{"timeout", "canceled", "unavailable"} {
			proxyMetricsInstance.errorsTotal.WithLabelValues(et)
		}
	})
}

func getProxyMetrics() *proxyMetrics {
	InitMetrics(nil)
	return proxyMetricsInstance
}
