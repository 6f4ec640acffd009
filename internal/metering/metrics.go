package metering

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metering call results.
const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultDropped = "dropped"
	resultPanic   = "panic"
)

type meteringMetrics struct {
	callsTotal       *prometheus.CounterVec
	callDuration     prometheus.Histogram
	queueDepth       prometheus.Gauge
	chunksTotal      *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	breakerTransited *prometheus.CounterVec
}

var (
	metricsInstance *meteringMetrics
	metricsOnce     sync.Once
)

func getMetrics() *meteringMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &meteringMetrics{
			callsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "openapigw",
					Subsystem: "metering",
					Name:      "calls_total",
					Help: "Total number of invocation " +
						"counter updates by result",
				},
				[]string{"result"},
			),
			callDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "openapigw",
					Subsystem: "metering",
					Name:      "call_duration_seconds",
					Help:      "Duration of invocation counter updates",
					Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
				},
			),
			queueDepth: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "openapigw",
					Subsystem: "metering",
					Name:      "queue_depth",
					Help:      "Number of pending invocation counter updates",
				},
			),
			chunksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "openapigw",
					Subsystem: "metering",
					Name:      "response_chunks_total",
					Help: "Total number of response " +
						"chunks forwarded by mode",
				},
				[]string{"mode"},
			),
			breakerState: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "openapigw",
					Subsystem: "metering",
					Name:      "circuit_breaker_state",
					Help: "Counter circuit breaker state " +
						"(0=closed, 1=half-open, 2=open)",
				},
				[]string{"name"},
			),
			breakerTransited: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "openapigw",
					Subsystem: "metering",
					Name:      "circuit_breaker_transitions_total",
					Help: "Total number of counter circuit " +
						"breaker state transitions",
				},
				[]string{"name", "from", "to"},
			),
		}
	})
	return metricsInstance
}
