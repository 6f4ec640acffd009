package metering

import (
	"context"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/openapigw/internal/observability"
)

// Granularity selects how many counter updates a metered response issues.
type Granularity string

// Granularities.
const (
	// GranularityChunk issues one update per forwarded body chunk.
	GranularityChunk Granularity = "chunk"
	// GranularityRequest issues one update per response, on its first
	// non-empty chunk.
	GranularityRequest Granularity = "request"
)

// DefaultMaxLoggedBytes caps the chunk excerpt written to debug logs.
const DefaultMaxLoggedBytes = 512

// ParseGranularity parses a configured granularity; empty selects chunk.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case "", GranularityChunk:
		return GranularityChunk, nil
	case GranularityRequest:
		return GranularityRequest, nil
	default:
		return "", fmt.Errorf("unknown metering granularity %q", s)
	}
}

// Submitter accepts fire-and-forget counter updates. Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, interfaceID, callerID int64) bool
}

// Meter turns forwarded chunks of successful responses into counter updates.
type Meter struct {
	submitter      Submitter
	granularity    Granularity
	logger         observability.Logger
	logChunks      bool
	maxLoggedBytes int
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithGranularity sets the counting granularity.
func WithGranularity(g Granularity) MeterOption {
	return func(m *Meter) {
		if g != "" {
			m.granularity = g
		}
	}
}

// WithMeterLogger sets the logger.
func WithMeterLogger(logger observability.Logger) MeterOption {
	return func(m *Meter) {
		m.logger = logger
	}
}

// WithChunkLogging logs an excerpt of every metered chunk at debug level.
// maxBytes <= 0 selects DefaultMaxLoggedBytes.
func WithChunkLogging(maxBytes int) MeterOption {
	return func(m *Meter) {
		m.logChunks = true
		if maxBytes <= 0 {
			maxBytes = DefaultMaxLoggedBytes
		}
		m.maxLoggedBytes = maxBytes
	}
}

// NewMeter returns a Meter submitting to s.
func NewMeter(s Submitter, opts ...MeterOption) *Meter {
	m := &Meter{
		submitter:      s,
		granularity:    GranularityChunk,
		logger:         observability.NopLogger(),
		maxLoggedBytes: DefaultMaxLoggedBytes,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Granularity returns the configured granularity.
func (m *Meter) Granularity() Granularity {
	return m.granularity
}

// Observe records one forwarded chunk. seq is the number of chunks already
// observed for the same response. It reports whether an update was issued.
func (m *Meter) Observe(ctx context.Context, target Target, seq int, chunk []byte) bool {
	if len(chunk) == 0 {
		return false
	}

	if m.logChunks {
		excerpt := chunk
		if len(excerpt) > m.maxLoggedBytes {
			excerpt = excerpt[:m.maxLoggedBytes]
		}
		m.logger.WithContext(ctx).Debug("response chunk",
			observability.Int64("interface_id", target.InterfaceID),
			observability.Int("seq", seq),
			observability.Int("size", len(chunk)),
			// string() copies; the caller's slice is not retained.
			observability.String("excerpt", string(excerpt)),
		)
	}

	if m.granularity == GranularityRequest && seq > 0 {
		return false
	}
	m.submitter.Submit(ctx, target.InterfaceID, target.OwnerCallerID)
	return true
}
