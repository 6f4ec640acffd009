package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrMissingHeader indicates a required signature header is absent.
	ErrMissingHeader = errors.New("missing signature header")

	// ErrCallerNotFound is returned by a Directory when the access key is unknown.
	ErrCallerNotFound = errors.New("caller not found")

	// ErrUnknownCaller indicates the access key could not be resolved.
	ErrUnknownCaller = errors.New("unknown caller")

	// ErrBadSignature indicates a missing or mismatched signature.
	ErrBadSignature = errors.New("signature mismatch")
)

// Rejection reasons. They are recorded in logs and metrics, never sent to the caller.
const (
	ReasonMissingHeader = "missing_header"
	ReasonUnknownCaller = "unknown_caller"
	ReasonReplay        = "replay"
	ReasonBadSignature  = "bad_signature"
)

// RejectError is the failure outcome of authentication.
type RejectError struct {
	Reason string
	Err    error
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("rejected (%s): %v", e.Reason, e.Err)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

func reject(reason string, err error) *RejectError {
	return &RejectError{Reason: reason, Err: err}
}

// ReasonOf returns the rejection reason carried by err, or "" if none.
func ReasonOf(err error) string {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
