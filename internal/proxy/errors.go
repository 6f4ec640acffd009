package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for proxy operations.
var (
	// ErrInvalidTargetURL indicates that the forward target is not an absolute http(s) URL.
	ErrInvalidTargetURL = errors.New("invalid target URL")

	// ErrUpstreamTimeout indicates that the upstream request timed out.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnavailable indicates that the upstream is unavailable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ProxyError describes a failed forward.
type ProxyError struct {
	Op     string
	Target string
	Cause  error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("proxy error [%s] target=%s: %v", e.Op, e.Target, e.Cause)
	}
	return fmt.Sprintf("proxy error [%s]: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// classify maps a transport error to a metric label and sentinel.
func classify(err error) (string, error) {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", ErrUpstreamTimeout
	case errors.Is(err, context.Canceled):
		return "canceled", err
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout", ErrUpstreamTimeout
	default:
		return "unavailable", ErrUpstreamUnavailable
	}
}
