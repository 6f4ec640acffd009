package signature

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Request header names carrying the signed attributes.
const (
	HeaderAccessKey = "accessKey"
	HeaderNonce     = "nonce"
	HeaderTimeStamp = "timeStamp"
	HeaderSign      = "sign"
	HeaderBody      = "body"
)

// DefaultNonceCeiling bounds nonces generated by Signer; it matches the
// gateway's default replay policy.
const DefaultNonceCeiling = 10000

// Signer attaches signature headers to outgoing requests on behalf of a caller.
type Signer struct {
	AccessKey    string
	SecretKey    string
	Engine       *Engine
	NonceCeiling int64
	Now          func() time.Time
	Nonce        func(ceiling int64) int64
}

// NewSigner returns a Signer with the default engine, clock and nonce source.
func NewSigner(accessKey, secretKey string, engine *Engine) *Signer {
	return &Signer{
		AccessKey:    accessKey,
		SecretKey:    secretKey,
		Engine:       engine,
		NonceCeiling: DefaultNonceCeiling,
		Now:          time.Now,
		Nonce:        rand.Int64N,
	}
}

// Attach sets accessKey, nonce, timeStamp, body and sign on req.
// body is the caller-declared signing input, not the transport body.
func (s *Signer) Attach(req *http.Request, body string) error {
	if s.AccessKey == "" || s.SecretKey == "" {
		return errors.New("signer access key and secret key must be set")
	}
	if s.Engine == nil {
		return errors.New("signer engine must be set")
	}

	ceiling := s.NonceCeiling
	if ceiling <= 0 {
		ceiling = DefaultNonceCeiling
	}

	p := Params{
		AccessKey: s.AccessKey,
		Nonce:     strconv.FormatInt(s.Nonce(ceiling), 10),
		TimeStamp: strconv.FormatInt(s.Now().Unix(), 10),
		Body:      body,
	}

	req.Header.Set(HeaderAccessKey, p.AccessKey)
	req.Header.Set(HeaderNonce, p.Nonce)
	req.Header.Set(HeaderTimeStamp, p.TimeStamp)
	req.Header.Set(HeaderBody, p.Body)
	req.Header.Set(HeaderSign, s.Engine.Sign(p, s.SecretKey))
	return nil
}
