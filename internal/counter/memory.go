// Package counter persists invocation counts for the metering stage.
package counter

import (
	"context"
	"sync"
)

// Key identifies an invocation counter.
type Key struct {
	InterfaceID int64
	CallerID    int64
}

// Memory keeps counts in process memory. Counts are lost on restart.
type Memory struct {
	mu     sync.Mutex
	counts map[Key]int64
}

// NewMemory returns an empty in-memory counter.
func NewMemory() *Memory {
	return &Memory{counts: make(map[Key]int64)}
}

// RecordInvocation implements metering.Counter.
func (m *Memory) RecordInvocation(ctx context.Context, interfaceID, callerID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.counts[Key{InterfaceID: interfaceID, CallerID: callerID}]++
	m.mu.Unlock()
	return nil
}

// Count returns the number of recorded invocations for the pair.
func (m *Memory) Count(interfaceID, callerID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[Key{InterfaceID: interfaceID, CallerID: callerID}]
}

// Snapshot returns a copy of all counts.
func (m *Memory) Snapshot() map[Key]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Key]int64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}
