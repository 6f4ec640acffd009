// Package signature computes and verifies the keyed request digest that
// callers attach to every request.
//
// The digest covers a fixed, ordered set of attributes (accessKey, nonce,
// timeStamp, body). The canonical string is built from that fixed order and
// never from map iteration, so the same inputs always produce the same digest.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Supported digest algorithms.
const (
	// AlgorithmSHA256 is hex(SHA-256(canonical + "." + secret)).
	AlgorithmSHA256 = "sha256"

	// AlgorithmHMACSHA256 is hex(HMAC-SHA256(secret, canonical)).
	AlgorithmHMACSHA256 = "hmac-sha256"
)

// ErrUnsupportedAlgorithm is returned by NewEngine for unknown algorithms.
var ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")

// Params are the signed request attributes.
type Params struct {
	AccessKey string
	Nonce     string
	TimeStamp string
	Body      string
}

// Canonical renders p in the fixed signing order.
func (p Params) Canonical() string {
	var b strings.Builder
	b.Grow(len(p.AccessKey) + len(p.Nonce) + len(p.TimeStamp) + len(p.Body) + 40)
	b.WriteString("accessKey=")
	b.WriteString(p.AccessKey)
	b.WriteString("&nonce=")
	b.WriteString(p.Nonce)
	b.WriteString("&timeStamp=")
	b.WriteString(p.TimeStamp)
	b.WriteString("&body=")
	b.WriteString(p.Body)
	return b.String()
}

// Engine computes request signatures. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	algorithm string
}

// NewEngine returns an Engine for the given algorithm; empty selects sha256.
func NewEngine(algorithm string) (*Engine, error) {
	switch algorithm {
	case "":
		algorithm = AlgorithmSHA256
	case AlgorithmSHA256, AlgorithmHMACSHA256:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	return &Engine{algorithm: algorithm}, nil
}

// Algorithm reports the configured algorithm.
func (e *Engine) Algorithm() string {
	return e.algorithm
}

// Sign returns the lowercase hex digest of p keyed by secret.
func (e *Engine) Sign(p Params, secret string) string {
	canonical := p.Canonical()

	if e.algorithm == AlgorithmHMACSHA256 {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(canonical))
		return hex.EncodeToString(mac.Sum(nil))
	}

	sum := sha256.Sum256([]byte(canonical + "." + secret))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether supplied is exactly the signature of p under secret.
// An empty supplied signature never verifies.
func (e *Engine) Verify(p Params, secret, supplied string) bool {
	if supplied == "" {
		return false
	}
	expected := e.Sign(p, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
