// Package replay implements the request freshness policy: a nonce ceiling and
// a timestamp window, both evaluated as integer comparisons.
//
// The policy is a stateless heuristic; it does not remember nonces. A
// NonceStore may be plugged in to add uniqueness tracking, but none is used
// unless one is configured explicitly.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Policy defaults.
const (
	DefaultNonceCeiling = 10000
	DefaultWindow       = 5 * time.Minute
)

// Rejection reasons.
var (
	ErrMalformedNonce     = errors.New("nonce is not a non-negative integer")
	ErrNonceOutOfRange    = errors.New("nonce exceeds ceiling")
	ErrMalformedTimestamp = errors.New("timestamp is not an integer")
	ErrStaleTimestamp     = errors.New("timestamp outside replay window")
	ErrNonceReused        = errors.New("nonce already seen")
)

// NonceStore remembers nonces per access key. Remember reports fresh=false
// when the nonce was already recorded within ttl.
type NonceStore interface {
	Remember(ctx context.Context, accessKey, nonce string, ttl time.Duration) (fresh bool, err error)
}

// Guard evaluates the replay policy for one request at a time. It holds no
// per-request state and is safe for concurrent use.
type Guard struct {
	ceiling int64
	window  time.Duration
	now     func() time.Time
	store   NonceStore
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// WithNonceStore enables nonce uniqueness tracking.
func WithNonceStore(store NonceStore) Option {
	return func(g *Guard) {
		g.store = store
	}
}

// NewGuard returns a Guard; non-positive values select the defaults.
func NewGuard(nonceCeiling int64, window time.Duration, opts ...Option) *Guard {
	if nonceCeiling <= 0 {
		nonceCeiling = DefaultNonceCeiling
	}
	if window <= 0 {
		window = DefaultWindow
	}

	g := &Guard{
		ceiling: nonceCeiling,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check rejects the request unless 0 <= nonce < ceiling and
// |now - timeStamp| < window. Timestamps are seconds since the epoch. Check
// never touches the NonceStore; see Commit.
func (g *Guard) Check(_ context.Context, _, nonce, timeStamp string) error {
	n, err := strconv.ParseInt(nonce, 10, 64)
	if err != nil || n < 0 {
		return ErrMalformedNonce
	}
	if n >= g.ceiling {
		return ErrNonceOutOfRange
	}

	ts, err := strconv.ParseInt(timeStamp, 10, 64)
	if err != nil {
		return ErrMalformedTimestamp
	}

	diff := g.now().Unix() - ts
	if diff < 0 {
		diff = -diff
	}
	// Compared in whole seconds; a negative diff after negation means overflow.
	if diff < 0 || diff >= g.windowSeconds() {
		return ErrStaleTimestamp
	}
	return nil
}

// Commit records the nonce in the NonceStore, if one is configured. It must
// run only after the request signature has been verified, so that unsigned
// requests cannot consume a caller's nonces.
func (g *Guard) Commit(ctx context.Context, accessKey, nonce string) error {
	if g.store == nil {
		return nil
	}

	fresh, err := g.store.Remember(ctx, accessKey, nonce, g.window)
	if err != nil {
		return fmt.Errorf("nonce store: %w", err)
	}
	if !fresh {
		return ErrNonceReused
	}
	return nil
}

// windowSeconds rounds the window up to whole seconds.
func (g *Guard) windowSeconds() int64 {
	return int64((g.window + time.Second - 1) / time.Second)
}
