package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Params{
	AccessKey: "ak-123",
	Nonce:     "42",
	TimeStamp: "1700000000",
	Body:      "hello",
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		algorithm string
		want      string
		wantErr   bool
	}{
		{name: "default", algorithm: "", want: AlgorithmSHA256},
		{name: "sha256", algorithm: AlgorithmSHA256, want: AlgorithmSHA256},
		{name: "hmac", algorithm: AlgorithmHMACSHA256, want: AlgorithmHMACSHA256},
		{name: "unknown", algorithm: "md5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, err := NewEngine(tt.algorithm)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Algorithm())
		})
	}
}

func TestParams_Canonical(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "accessKey=ak-123&nonce=42&timeStamp=1700000000&body=hello", testParams.Canonical())
}

func TestEngine_Sign_MatchesIndependentDigest(t *testing.T) {
	t.Parallel()

	sha, err := NewEngine(AlgorithmSHA256)
	require.NoError(t, err)
	sum := sha256.Sum256([]byte("accessKey=ak-123&nonce=42&timeStamp=1700000000&body=hello.secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), sha.Sign(testParams, "secret"))

	hm, err := NewEngine(AlgorithmHMACSHA256)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("accessKey=ak-123&nonce=42&timeStamp=1700000000&body=hello"))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), hm.Sign(testParams, "secret"))
}

func TestEngine_Sign_Deterministic(t *testing.T) {
	t.Parallel()

	e, err := NewEngine("")
	require.NoError(t, err)

	first := e.Sign(testParams, "secret")
	for range 100 {
		assert.Equal(t, first, e.Sign(testParams, "secret"))
	}
	assert.NotEqual(t, first, e.Sign(testParams, "other-secret"))
}

func TestEngine_Verify_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{AlgorithmSHA256, AlgorithmHMACSHA256} {
		e, err := NewEngine(alg)
		require.NoError(t, err)

		sig := e.Sign(testParams, "secret")
		assert.True(t, e.Verify(testParams, "secret", sig), alg)
		assert.False(t, e.Verify(testParams, "wrong", sig), alg)
		assert.False(t, e.Verify(testParams, "secret", ""), alg)
		assert.False(t, e.Verify(testParams, "secret", sig[:len(sig)-1]), "prefix must not match")
		assert.False(t, e.Verify(testParams, "secret", sig+"0"), "extension must not match")
	}
}

func flipByte(s string, i int) string {
	b := []byte(s)
	b[i] ^= 0x01
	return string(b)
}

func TestEngine_Verify_SingleByteFlipFails(t *testing.T) {
	t.Parallel()

	e, err := NewEngine("")
	require.NoError(t, err)
	sig := e.Sign(testParams, "secret")

	for i := range sig {
		assert.False(t, e.Verify(testParams, "secret", flipByte(sig, i)), "sign byte %d", i)
	}

	mutate := map[string]func(p Params, i int) Params{
		"accessKey": func(p Params, i int) Params { p.AccessKey = flipByte(p.AccessKey, i); return p },
		"nonce":     func(p Params, i int) Params { p.Nonce = flipByte(p.Nonce, i); return p },
		"timeStamp": func(p Params, i int) Params { p.TimeStamp = flipByte(p.TimeStamp, i); return p },
		"body":      func(p Params, i int) Params { p.Body = flipByte(p.Body, i); return p },
	}
	lengths := map[string]int{
		"accessKey": len(testParams.AccessKey),
		"nonce":     len(testParams.Nonce),
		"timeStamp": len(testParams.TimeStamp),
		"body":      len(testParams.Body),
	}

	for field, fn := range mutate {
		for i := 0; i < lengths[field]; i++ {
			assert.False(t, e.Verify(fn(testParams, i), "secret", sig), "%s byte %d", field, i)
		}
	}
}

func TestSigner_Attach(t *testing.T) {
	t.Parallel()

	e, err := NewEngine("")
	require.NoError(t, err)

	s := NewSigner("ak-123", "secret", e)
	s.Now = func() time.Time { return time.Unix(1700000000, 0) }
	s.Nonce = func(int64) int64 { return 42 }

	req := httptest.NewRequest(http.MethodGet, "/api/name", nil)
	require.NoError(t, s.Attach(req, "hello"))

	assert.Equal(t, "ak-123", req.Header.Get(HeaderAccessKey))
	assert.Equal(t, "42", req.Header.Get(HeaderNonce))
	assert.Equal(t, "1700000000", req.Header.Get(HeaderTimeStamp))
	assert.Equal(t, "hello", req.Header.Get(HeaderBody))
	assert.Equal(t, e.Sign(testParams, "secret"), req.Header.Get(HeaderSign))
}

func TestSigner_Attach_RequiresCredentials(t *testing.T) {
	t.Parallel()

	e, err := NewEngine("")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Error(t, NewSigner("", "secret", e).Attach(req, ""))
	assert.Error(t, NewSigner("ak", "", e).Attach(req, ""))
	assert.Error(t, NewSigner("ak", "secret", nil).Attach(req, ""))
}

func TestSigner_DefaultNonceWithinCeiling(t *testing.T) {
	t.Parallel()

	e, err := NewEngine("")
	require.NoError(t, err)
	s := NewSigner("ak", "secret", e)
	s.NonceCeiling = 0

	var seen int64
	s.Nonce = func(ceiling int64) int64 { seen = ceiling; return 1 }

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, s.Attach(req, ""))
	assert.Equal(t, int64(DefaultNonceCeiling), seen)
}
