// Package metering counts successful invocations while the response body
// streams back to the caller.
//
// Each forwarded chunk of a successful response triggers one fire-and-forget
// counter update keyed by (interface, owner). Updates run on a bounded worker
// pool so the byte stream never waits for the counter collaborator, and a
// failing collaborator never truncates or stalls the response.
package metering

import "context"

// Counter persists invocation counts.
type Counter interface {
	RecordInvocation(ctx context.Context, interfaceID, callerID int64) error
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(ctx context.Context, interfaceID, callerID int64) error

// RecordInvocation implements Counter.
func (f CounterFunc) RecordInvocation(ctx context.Context, interfaceID, callerID int64) error {
	return f(ctx, interfaceID, callerID)
}

// Target identifies what a metered response is counted against.
type Target struct {
	InterfaceID   int64
	OwnerCallerID int64
}
