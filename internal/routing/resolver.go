// Package routing maps an inbound path and method to the registered interface
// it addresses.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vyrodovalexey/openapigw/internal/observability"
)

var tracer = otel.Tracer("openapigw/routing")

// ErrRouteNotFound is returned by a Registry when no interface matches.
var ErrRouteNotFound = errors.New("route not found")

// ErrRegistryUnavailable wraps registry faults other than not-found.
var ErrRegistryUnavailable = errors.New("interface registry unavailable")

// RouteInfo describes a registered interface.
type RouteInfo struct {
	InterfaceID   int64
	Path          string
	Method        string
	OwnerCallerID int64
}

// Registry looks up interfaces by path and method.
type Registry interface {
	ResolveRoute(ctx context.Context, path, method string) (*RouteInfo, error)
}

// Resolver resolves routes through a Registry.
type Resolver struct {
	registry Registry
	logger   observability.Logger
}

// NewResolver returns a Resolver over registry.
func NewResolver(registry Registry, logger observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Resolver{registry: registry, logger: logger}
}

// Resolve returns the interface registered for (path, method). The result is
// either a RouteInfo or an error wrapping ErrRouteNotFound or ErrRegistryUnavailable.
func (r *Resolver) Resolve(ctx context.Context, path, method string) (*RouteInfo, error) {
	ctx, span := tracer.Start(ctx, "routing.resolve")
	defer span.End()

	method = strings.ToUpper(method)
	span.SetAttributes(
		attribute.String("http.route", path),
		attribute.String("http.request.method", method),
	)

	info, err := r.registry.ResolveRoute(ctx, path, method)
	switch {
	case errors.Is(err, ErrRouteNotFound) || (err == nil && info == nil):
		span.SetStatus(codes.Error, "not found")
		return nil, fmt.Errorf("%w: %s %s", ErrRouteNotFound, method, path)
	case err != nil:
		span.SetStatus(codes.Error, "registry error")
		r.logger.WithContext(ctx).Error("interface lookup failed",
			observability.String("path", path),
			observability.String("method", method),
			observability.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	span.SetAttributes(
		attribute.Int64("route.interface_id", info.InterfaceID),
		attribute.Int64("route.owner_id", info.OwnerCallerID),
	)
	return info, nil
}
