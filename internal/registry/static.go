// Package registry provides interface registries: a static one built from
// configuration and a PostgreSQL one.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/openapigw/internal/routing"
)

// Entry is a configured interface.
type Entry struct {
	ID      int64  `yaml:"id" json:"id"`
	Path    string `yaml:"path" json:"path"`
	Method  string `yaml:"method" json:"method"`
	OwnerID int64  `yaml:"ownerId" json:"ownerId"`
}

type routeKey struct {
	path   string
	method string
}

// Static resolves interfaces from an immutable table.
type Static struct {
	routes map[routeKey]routing.RouteInfo
}

// NewStatic builds a Static registry. Methods are matched case-insensitively.
func NewStatic(entries []Entry) (*Static, error) {
	routes := make(map[routeKey]routing.RouteInfo, len(entries))
	for _, e := range entries {
		if e.Path == "" || e.Method == "" {
			return nil, fmt.Errorf("interface %d: path and method are required", e.ID)
		}
		key := routeKey{path: e.Path, method: strings.ToUpper(e.Method)}
		if _, dup := routes[key]; dup {
			return nil, fmt.Errorf("duplicate interface %s %s", key.method, key.path)
		}
		routes[key] = routing.RouteInfo{
			InterfaceID:   e.ID,
			Path:          e.Path,
			Method:        key.method,
			OwnerCallerID: e.OwnerID,
		}
	}
	return &Static{routes: routes}, nil
}

// ResolveRoute implements routing.Registry.
func (s *Static) ResolveRoute(_ context.Context, path, method string) (*routing.RouteInfo, error) {
	info, ok := s.routes[routeKey{path: path, method: strings.ToUpper(method)}]
	if !ok {
		return nil, routing.ErrRouteNotFound
	}
	return &info, nil
}

// Len returns the number of registered interfaces.
func (s *Static) Len() int {
	return len(s.routes)
}
