// Package directory provides caller directories: a static one built from
// configuration, a PostgreSQL one and a Vault KV one.
package directory

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/vyrodovalexey/openapigw/internal/auth"
)

// Entry is a configured caller.
type Entry struct {
	ID        int64  `yaml:"id" json:"id"`
	AccessKey string `yaml:"accessKey" json:"accessKey"`
	SecretKey string `yaml:"secretKey" json:"secretKey"`
}

// Static resolves callers from an in-memory table that can be replaced at runtime.
type Static struct {
	callers atomic.Pointer[map[string]auth.Caller]
}

// NewStatic builds a Static directory. Duplicate or empty access keys are rejected.
func NewStatic(entries []Entry) (*Static, error) {
	s := &Static{}
	if err := s.Replace(entries); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace swaps the caller table.
func (s *Static) Replace(entries []Entry) error {
	m := make(map[string]auth.Caller, len(entries))
	for _, e := range entries {
		if e.AccessKey == "" {
			return fmt.Errorf("caller %d: empty access key", e.ID)
		}
		if _, dup := m[e.AccessKey]; dup {
			return fmt.Errorf("duplicate access key %q", e.AccessKey)
		}
		m[e.AccessKey] = auth.Caller{ID: e.ID, AccessKey: e.AccessKey, SecretKey: e.SecretKey}
	}
	s.callers.Store(&m)
	return nil
}

// ResolveCaller implements auth.Directory.
func (s *Static) ResolveCaller(_ context.Context, accessKey string) (*auth.Caller, error) {
	c, ok := (*s.callers.Load())[accessKey]
	if !ok {
		return nil, auth.ErrCallerNotFound
	}
	return &c, nil
}
