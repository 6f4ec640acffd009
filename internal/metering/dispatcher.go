package metering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/openapigw/internal/observability"
)

// Dispatcher defaults.
const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 1024
	DefaultCallTimeout = 2 * time.Second

	// dropWarnInterval and dropWarnBurst bound how often a saturated queue is logged.
	dropWarnInterval = time.Second
	dropWarnBurst    = 5
)

// ErrDispatcherClosed is returned by Close when called twice.
var ErrDispatcherClosed = errors.New("dispatcher is closed")

type job struct {
	ctx         context.Context
	interfaceID int64
	callerID    int64
}

// Dispatcher runs counter updates on a fixed worker pool fed by a bounded
// queue. Submissions never block the caller.
type Dispatcher struct {
	counter     Counter
	logger      observability.Logger
	workers     int
	callTimeout time.Duration
	dropWarn    *rate.Limiter
	dropped     atomic.Int64

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger observability.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithWorkers sets the number of workers.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan job, n)
		}
	}
}

// WithCallTimeout bounds each counter call.
func WithCallTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.callTimeout = timeout
		}
	}
}

// NewDispatcher starts the workers.
func NewDispatcher(counter Counter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		counter:     counter,
		logger:      observability.NopLogger(),
		workers:     DefaultWorkers,
		callTimeout: DefaultCallTimeout,
		dropWarn:    rate.NewLimiter(rate.Every(dropWarnInterval), dropWarnBurst),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.queue == nil {
		d.queue = make(chan job, DefaultQueueSize)
	}

	d.wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go d.run()
	}
	return d
}

// Submit enqueues one counter update. It reports false when the update was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Submit(ctx context.Context, interfaceID, callerID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		getMetrics().callsTotal.WithLabelValues(resultDropped).Inc()
		return false
	}

	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), interfaceID: interfaceID, callerID: callerID}:
		getMetrics().queueDepth.Inc()
		return true
	default:
		getMetrics().callsTotal.WithLabelValues(resultDropped).Inc()
		dropped := d.dropped.Add(1)
		if d.dropWarn.Allow() {
			d.logger.WithContext(ctx).Warn("metering queue full, invocation not counted",
				observability.Int64("interface_id", interfaceID),
				observability.Int64("caller_id", callerID),
				observability.Int64("dropped_total", dropped),
			)
		}
		return false
	}
}

// Dropped returns the number of updates rejected because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting submissions and waits for queued updates to finish
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining metering queue: %w", ctx.Err())
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		getMetrics().queueDepth.Dec()
		d.call(j)
	}
}

func (d *Dispatcher) call(j job) {
	logger := d.logger.WithContext(j.ctx)
	defer func() {
		if r := recover(); r != nil {
			getMetrics().callsTotal.WithLabelValues(resultPanic).Inc()
			logger.Error("panic in invocation counter",
				observability.Any("panic", r),
				observability.Int64("interface_id", j.interfaceID),
				observability.Int64("caller_id", j.callerID),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(j.ctx, d.callTimeout)
	defer cancel()

	start := time.Now()
	err := d.counter.RecordInvocation(ctx, j.interfaceID, j.callerID)
	getMetrics().callDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		getMetrics().callsTotal.WithLabelValues(resultFailure).Inc()
		logger.Warn("invocation counter update failed",
			observability.Int64("interface_id", j.interfaceID),
			observability.Int64("caller_id", j.callerID),
			observability.Error(err),
		)
		return
	}
	getMetrics().callsTotal.WithLabelValues(resultSuccess).Inc()
}
