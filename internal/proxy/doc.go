// Package proxy forwards admitted requests to the configured backend.
//
// The forwarder streams responses back with immediate flushing so that each
// backend chunk reaches the metering writer, and from there the caller, as
// soon as it arrives. httputil.ReverseProxy owns the backend response body and
// closes it once the copy finishes.
package proxy
