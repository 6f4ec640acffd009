// Package gateway assembles the HTTP surfaces of the gateway process: the
// public listener that runs every request through the filter chain, and the
// admin listener that serves health probes and Prometheus metrics.
package gateway
