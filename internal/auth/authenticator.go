package auth

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vyrodovalexey/openapigw/internal/observability"
	"github.com/vyrodovalexey/openapigw/internal/signature"
)

var tracer = otel.Tracer("openapigw/auth")

// Caller is an identity resolved from the user directory.
type Caller struct {
	ID        int64
	AccessKey string
	SecretKey string
}

// Directory resolves callers by access key. Implementations return
// ErrCallerNotFound for unknown keys.
type Directory interface {
	ResolveCaller(ctx context.Context, accessKey string) (*Caller, error)
}

// ReplayChecker evaluates request freshness. Check is stateless; Commit
// records the nonce and is called only for correctly signed requests.
type ReplayChecker interface {
	Check(ctx context.Context, accessKey, nonce, timeStamp string) error
	Commit(ctx context.Context, accessKey, nonce string) error
}

// Authenticator combines the directory lookup, the replay policy and
// signature verification into a single decision.
type Authenticator struct {
	directory Directory
	replay    ReplayChecker
	engine    *signature.Engine
	logger    observability.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// NewAuthenticator returns an Authenticator over the given collaborators.
func NewAuthenticator(directory Directory, replay ReplayChecker, engine *signature.Engine, opts ...Option) *Authenticator {
	a := &Authenticator{
		directory: directory,
		replay:    replay,
		engine:    engine,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate returns the caller owning sig.AccessKey when the request is
// fresh and correctly signed with that caller's secret.
func (a *Authenticator) Authenticate(ctx context.Context, sig RequestSignature) (*Caller, error) {
	ctx, span := tracer.Start(ctx, "auth.authenticate")
	defer span.End()

	caller, err := a.authenticate(ctx, sig)
	if err != nil {
		span.SetStatus(codes.Error, ReasonOf(err))
		span.SetAttributes(attribute.String("auth.reject_reason", ReasonOf(err)))
		return nil, err
	}

	span.SetAttributes(attribute.Int64("auth.caller_id", caller.ID))
	return caller, nil
}

func (a *Authenticator) authenticate(ctx context.Context, sig RequestSignature) (*Caller, error) {
	logger := a.logger.WithContext(ctx)

	if sig.AccessKey == "" {
		return nil, reject(ReasonMissingHeader, ErrMissingHeader)
	}

	caller, err := a.directory.ResolveCaller(ctx, sig.AccessKey)
	switch {
	case errors.Is(err, ErrCallerNotFound):
		logger.Info("unknown access key", observability.String("access_key", sig.AccessKey))
		return nil, reject(ReasonUnknownCaller, ErrUnknownCaller)
	case err != nil:
		logger.Error("caller lookup failed",
			observability.String("access_key", sig.AccessKey),
			observability.Error(err),
		)
		return nil, reject(ReasonUnknownCaller, errors.Join(ErrUnknownCaller, err))
	case caller == nil:
		return nil, reject(ReasonUnknownCaller, ErrUnknownCaller)
	}

	if err := a.replay.Check(ctx, sig.AccessKey, sig.Nonce, sig.TimeStamp); err != nil {
		logger.Debug("replay check failed",
			observability.String("access_key", sig.AccessKey),
			observability.Error(err),
		)
		return nil, reject(ReasonReplay, err)
	}

	// Only the secret of the caller resolved for this access key is used.
	if caller.SecretKey == "" || !a.engine.Verify(sig.Params(), caller.SecretKey, sig.Sign) {
		logger.Debug("signature mismatch", observability.String("access_key", sig.AccessKey))
		return nil, reject(ReasonBadSignature, ErrBadSignature)
	}

	if err := a.replay.Commit(ctx, sig.AccessKey, sig.Nonce); err != nil {
		logger.Info("nonce rejected",
			observability.String("access_key", sig.AccessKey),
			observability.Error(err),
		)
		return nil, reject(ReasonReplay, err)
	}

	return caller, nil
}
