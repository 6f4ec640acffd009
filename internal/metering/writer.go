package metering

import (
	"context"
	"net/http"

	"github.com/vyrodovalexey/openapigw/internal/observability"
)

// Outcome is the metering decision taken for a response.
type Outcome int

// Outcomes.
const (
	OutcomePending Outcome = iota
	OutcomeMetered
	OutcomePassThrough
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeMetered:
		return "metered"
	case OutcomePassThrough:
		return "pass_through"
	default:
		return "pending"
	}
}

// ResponseWriter forwards a response unchanged and meters its body chunks
// once a success status is known. It is used by a single handler goroutine.
type ResponseWriter struct {
	http.ResponseWriter

	ctx    context.Context
	meter  *Meter
	target Target

	outcome Outcome
	status  int
	chunks  int
	bytes   int64
}

// Wrap returns a metering ResponseWriter for one request.
func (m *Meter) Wrap(ctx context.Context, w http.ResponseWriter, target Target) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		ctx:            ctx,
		meter:          m,
		target:         target,
	}
}

// WriteHeader implements http.ResponseWriter. Informational statuses are
// forwarded without deciding the outcome.
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.outcome == OutcomePending && (code < 100 || code >= 200) {
		rw.decide(code)
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Write implements http.ResponseWriter.
func (rw *ResponseWriter) Write(p []byte) (int, error) {
	if rw.outcome == OutcomePending {
		rw.decide(http.StatusOK)
	}

	if rw.outcome == OutcomeMetered {
		if err := rw.ctx.Err(); err != nil {
			return 0, err
		}
	}

	n, err := rw.ResponseWriter.Write(p)
	rw.bytes += int64(n)
	if n > 0 && rw.outcome == OutcomeMetered {
		rw.observe(p[:n])
	}
	return n, err
}

// Flush implements http.Flusher when the wrapped writer does.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the wrapped writer for http.ResponseController.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Outcome returns the metering decision.
func (rw *ResponseWriter) Outcome() Outcome {
	return rw.outcome
}

// Status returns the response status, or 0 before it is written.
func (rw *ResponseWriter) Status() int {
	return rw.status
}

// Chunks returns the number of non-empty chunks metered.
func (rw *ResponseWriter) Chunks() int {
	return rw.chunks
}

// BytesWritten returns the number of body bytes forwarded.
func (rw *ResponseWriter) BytesWritten() int64 {
	return rw.bytes
}

func (rw *ResponseWriter) decide(code int) {
	rw.status = code
	if code >= 200 && code < 300 {
		rw.outcome = OutcomeMetered
		return
	}

	rw.outcome = OutcomePassThrough
	rw.meter.logger.WithContext(rw.ctx).Warn("backend response not successful, not metering",
		observability.Int("status", code),
		observability.Int64("interface_id", rw.target.InterfaceID),
	)
}

// observe meters one forwarded chunk. A fault here never reaches the
// response: the writer degrades to pass-through.
func (rw *ResponseWriter) observe(chunk []byte) {
	defer func() {
		if r := recover(); r != nil {
			rw.outcome = OutcomePassThrough
			getMetrics().chunksTotal.WithLabelValues(OutcomePassThrough.String()).Inc()
			rw.meter.logger.WithContext(rw.ctx).Error("metering fault, forwarding unmetered",
				observability.Any("panic", r),
				observability.Int64("interface_id", rw.target.InterfaceID),
			)
		}
	}()

	rw.meter.Observe(rw.ctx, rw.target, rw.chunks, chunk)
	rw.chunks++
	getMetrics().chunksTotal.WithLabelValues(OutcomeMetered.String()).Inc()
}
