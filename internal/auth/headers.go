package auth

import (
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/openapigw/internal/signature"
)

// RequestSignature holds the five signature headers carried by a request.
type RequestSignature struct {
	AccessKey string
	Nonce     string
	TimeStamp string
	Sign      string
	Body      string
}

// Params returns the attributes covered by the signature.
func (s RequestSignature) Params() signature.Params {
	return signature.Params{
		AccessKey: s.AccessKey,
		Nonce:     s.Nonce,
		TimeStamp: s.TimeStamp,
		Body:      s.Body,
	}
}

// ExtractSignature reads the signature headers from h. All five must be
// present; body may be empty but the header must exist.
func ExtractSignature(h http.Header) (RequestSignature, error) {
	var sig RequestSignature

	fields := []struct {
		name     string
		dst      *string
		nonEmpty bool
	}{
		{signature.HeaderAccessKey, &sig.AccessKey, true},
		{signature.HeaderNonce, &sig.Nonce, true},
		{signature.HeaderTimeStamp, &sig.TimeStamp, true},
		{signature.HeaderSign, &sig.Sign, true},
		{signature.HeaderBody, &sig.Body, false},
	}

	for _, f := range fields {
		values := h.Values(f.name)
		if len(values) == 0 || (f.nonEmpty && values[0] == "") {
			return RequestSignature{}, fmt.Errorf("%w: %s", ErrMissingHeader, f.name)
		}
		*f.dst = values[0]
	}

	return sig, nil
}
