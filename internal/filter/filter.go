// Package filter sequences admission, authentication, route resolution,
// forwarding and metering into one per-request decision.
//
// Every failure before forwarding yields an empty 403 response; the reason is
// logged and counted but never sent to the caller. After forwarding the caller
// always receives the backend's own status and body, metered when the status
// is a success.
package filter

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/openapigw/internal/admission"
	"github.com/vyrodovalexey/openapigw/internal/auth"
	"github.com/vyrodovalexey/openapigw/internal/metering"
	"github.com/vyrodovalexey/openapigw/internal/observability"
	"github.com/vyrodovalexey/openapigw/internal/replay"
	"github.com/vyrodovalexey/openapigw/internal/routing"
	"github.com/vyrodovalexey/openapigw/internal/signature"
)

var tracer = otel.Tracer("openapigw/filter")

// Rejection reasons added on top of the auth reasons.
const (
	ReasonOriginDenied  = "origin_denied"
	ReasonRouteNotFound = "route_not_found"
	ReasonRegistryError = "registry_error"
)

// Decision outcomes.
const (
	OutcomeRejected = "rejected"
	OutcomeEmpty    = "empty"
)

// ErrMissingDependency is returned by New when a collaborator is nil.
var ErrMissingDependency = errors.New("missing filter dependency")

// Config holds the per-deployment filter settings.
type Config struct {
	AllowedOrigins     []string
	TrustedProxies     []string
	ReplayWindow       time.Duration
	NonceCeiling       int64
	SignatureAlgorithm string
	Granularity        metering.Granularity
	// LogChunks logs a truncated copy of every metered chunk at debug level.
	LogChunks      bool
	MaxLoggedBytes int
}

// Dependencies are the collaborators the filter consumes.
type Dependencies struct {
	Directory auth.Directory
	Registry  routing.Registry
	Submitter metering.Submitter
	// NonceStore is optional.
	NonceStore replay.NonceStore
}

// Filter is the request interception pipeline.
type Filter struct {
	gate     *admission.Gate
	auth     *auth.Authenticator
	resolver *routing.Resolver
	meter    *metering.Meter
	logger   observability.Logger
	clock    func() time.Time
}

// Option configures a Filter.
type Option func(*Filter)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Filter) {
		f.logger = logger
	}
}

// WithClock overrides the clock used by the replay policy.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) {
		f.clock = now
	}
}

// New builds a Filter.
func New(cfg Config, deps Dependencies, opts ...Option) (*Filter, error) {
	switch {
	case deps.Directory == nil:
		return nil, fmt.Errorf("%w: directory", ErrMissingDependency)
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	case deps.Submitter == nil:
		return nil, fmt.Errorf("%w: submitter", ErrMissingDependency)
	}

	f := &Filter{
		logger: observability.NopLogger(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	gate, err := admission.NewGate(cfg.AllowedOrigins, cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	engine, err := signature.NewEngine(cfg.SignatureAlgorithm)
	if err != nil {
		return nil, err
	}

	guardOpts := []replay.Option{replay.WithClock(f.clock)}
	if deps.NonceStore != nil {
		guardOpts = append(guardOpts, replay.WithNonceStore(deps.NonceStore))
	}
	guard := replay.NewGuard(cfg.NonceCeiling, cfg.ReplayWindow, guardOpts...)

	meterOpts := []metering.MeterOption{
		metering.WithGranularity(cfg.Granularity),
		metering.WithMeterLogger(f.logger),
	}
	if cfg.LogChunks {
		meterOpts = append(meterOpts, metering.WithChunkLogging(cfg.MaxLoggedBytes))
	}

	f.gate = gate
	f.auth = auth.NewAuthenticator(deps.Directory, guard, engine, auth.WithLogger(f.logger))
	f.resolver = routing.NewResolver(deps.Registry, f.logger)
	f.meter = metering.NewMeter(deps.Submitter, meterOpts...)
	return f, nil
}

// UpdateAllowedOrigins replaces the admission allow-list.
func (f *Filter) UpdateAllowedOrigins(origins []string) error {
	return f.gate.Update(origins)
}

// Wrap returns a handler that runs the pipeline and delegates admitted
// requests to next through a metering ResponseWriter.
func (f *Filter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), "filter.handle",
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		logger := f.logger.WithContext(ctx)
		origin := f.gate.ClientIP(r)
		logger.Info("request received",
			observability.String("path", r.URL.Path),
			observability.String("method", r.Method),
			observability.String("query", r.URL.RawQuery),
			observability.String("origin", origin),
		)
		span.SetAttributes(attribute.String("client.address", origin))

		if !f.gate.Allow(origin) {
			f.reject(w, span, logger, start, ReasonOriginDenied, nil)
			return
		}

		sig, err := auth.ExtractSignature(r.Header)
		if err != nil {
			f.reject(w, span, logger, start, auth.ReasonMissingHeader, err)
			return
		}

		caller, err := f.auth.Authenticate(ctx, sig)
		if err != nil {
			f.reject(w, span, logger, start, auth.ReasonOf(err), err)
			return
		}
		span.SetAttributes(attribute.Int64("auth.caller_id", caller.ID))

		route, err := f.resolver.Resolve(ctx, r.URL.Path, r.Method)
		if err != nil {
			reason := ReasonRouteNotFound
			if errors.Is(err, routing.ErrRegistryUnavailable) {
				reason = ReasonRegistryError
			}
			f.reject(w, span, logger, start, reason, err)
			return
		}
		span.SetAttributes(
			attribute.Int64("route.interface_id", route.InterfaceID),
			attribute.Int64("route.owner_id", route.OwnerCallerID),
		)

		rw := f.meter.Wrap(ctx, w, metering.Target{
			InterfaceID:   route.InterfaceID,
			OwnerCallerID: route.OwnerCallerID,
		})
		next.ServeHTTP(rw, r.WithContext(ctx))

		outcome := rw.Outcome().String()
		if rw.Outcome() == metering.OutcomePending {
			outcome = OutcomeEmpty
		}
		span.SetAttributes(
			attribute.String("filter.outcome", outcome),
			attribute.Int("http.response.status_code", rw.Status()),
			attribute.Int("metering.chunks", rw.Chunks()),
		)

		m := getMetrics()
		m.decisionsTotal.WithLabelValues(outcome, "").Inc()
		m.requestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

		logger.Debug("request forwarded",
			observability.Int64("caller_id", caller.ID),
			observability.Int64("interface_id", route.InterfaceID),
			observability.Int("status", rw.Status()),
			observability.String("outcome", outcome),
			observability.Int("chunks", rw.Chunks()),
		)
	})
}

func (f *Filter) reject(
	w http.ResponseWriter,
	span trace.Span,
	logger observability.Logger,
	start time.Time,
	reason string,
	err error,
) {
	span.SetStatus(codes.Error, reason)
	span.SetAttributes(attribute.String("filter.reject_reason", reason))

	m := getMetrics()
	m.decisionsTotal.WithLabelValues(OutcomeRejected, reason).Inc()
	m.requestDuration.WithLabelValues(OutcomeRejected).Observe(time.Since(start).Seconds())

	fields := []observability.Field{observability.String("reason", reason)}
	if err != nil {
		fields = append(fields, observability.Error(err))
	}
	logger.Info("request rejected", fields...)

	w.WriteHeader(http.StatusForbidden)
}
