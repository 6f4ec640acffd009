package metering

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/openapigw/internal/observability"
)

var breakerTracer = otel.Tracer("openapigw/metering")

// BreakerConfig controls when BreakerCounter stops calling its counter.
type BreakerConfig struct {
	Name string
	// MinRequests is the number of calls in an interval before the failure
	// ratio is evaluated.
	MinRequests  uint32
	FailureRatio float64
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	Interval    time.Duration
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "counter",
		MinRequests:  10,
		FailureRatio: 0.5,
		OpenTimeout:  30 * time.Second,
		Interval:     60 * time.Second,
	}
}

// BreakerCounter fails fast while its counter keeps failing.
type BreakerCounter struct {
	next   Counter
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// NewBreakerCounter wraps next with a circuit breaker.
func NewBreakerCounter(next Counter, cfg BreakerConfig, logger observability.Logger) *BreakerCounter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	def := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = def.FailureRatio
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	bc := &BreakerCounter{next: next, logger: logger}
	getMetrics().breakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))

	bc.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			bc.logger.Warn("counter circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)

			m := getMetrics()
			m.breakerState.WithLabelValues(name).Set(float64(to))
			m.breakerTransited.WithLabelValues(name, from.String(), to.String()).Inc()

			_, span := breakerTracer.Start(context.Background(),
				"metering.breaker_state_change",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("circuitbreaker.name", name),
				attribute.String("circuitbreaker.from", from.String()),
				attribute.String("circuitbreaker.to", to.String()),
			))
			span.End()
		},
	})
	return bc
}

// RecordInvocation implements Counter. While the breaker is open it returns
// gobreaker.ErrOpenState without calling the wrapped counter.
func (b *BreakerCounter) RecordInvocation(ctx context.Context, interfaceID, callerID int64) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.RecordInvocation(ctx, interfaceID, callerID)
	})
	return err
}

// State returns the breaker state.
func (b *BreakerCounter) State() gobreaker.State {
	return b.cb.State()
}
