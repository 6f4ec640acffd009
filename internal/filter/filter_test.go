package filter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/openapigw/internal/auth"
	"github.com/vyrodovalexey/openapigw/internal/metering"
	"github.com/vyrodovalexey/openapigw/internal/routing"
	"github.com/vyrodovalexey/openapigw/internal/signature"
)

var now = time.Unix(1_700_000_000, 0)

type fakeDirectory struct {
	calls atomic.Int32
	err   error
}

func (d *fakeDirectory) ResolveCaller(_ context.Context, accessKey string) (*auth.Caller, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	if accessKey != "ak-alice" {
		return nil, auth.ErrCallerNotFound
	}
	return &auth.Caller{ID: 7, AccessKey: "ak-alice", SecretKey: "alice-secret"}, nil
}

type fakeRegistry struct {
	calls atomic.Int32
	err   error
}

func (r *fakeRegistry) ResolveRoute(_ context.Context, path, method string) (*routing.RouteInfo, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	if path != "/api/name" || method != http.MethodGet {
		return nil, routing.ErrRouteNotFound
	}
	return &routing.RouteInfo{InterfaceID: 101, Path: path, Method: method, OwnerCallerID: 202}, nil
}

type invocation struct {
	interfaceID int64
	callerID    int64
}

// recordingCounter is a Counter that records calls and optionally fails.
type recordingCounter struct {
	mu    sync.Mutex
	calls []invocation
	fail  bool
}

func (c *recordingCounter) RecordInvocation(_ context.Context, interfaceID, callerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, invocation{interfaceID: interfaceID, callerID: callerID})
	if c.fail {
		return errors.New("counter unavailable")
	}
	return nil
}

func (c *recordingCounter) Calls() []invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]invocation(nil), c.calls...)
}

// syncSubmitter calls the counter inline so tests observe calls without waiting.
type syncSubmitter struct {
	counter metering.Counter
	calls   atomic.Int32
}

func (s *syncSubmitter) Submit(ctx context.Context, interfaceID, callerID int64) bool {
	s.calls.Add(1)
	_ = s.counter.RecordInvocation(ctx, interfaceID, callerID)
	return true
}

type harness struct {
	filter    *Filter
	directory *fakeDirectory
	registry  *fakeRegistry
	counter   *recordingCounter
	submitter *syncSubmitter
	backend   atomic.Int32
	handler   http.Handler
}

func newHarness(t *testing.T, cfg Config, backend http.Handler) *harness {
	t.Helper()

	h := &harness{
		directory: &fakeDirectory{},
		registry:  &fakeRegistry{},
		counter:   &recordingCounter{},
	}
	h.submitter = &syncSubmitter{counter: h.counter}

	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"127.0.0.1"}
	}
	f, err := New(cfg, Dependencies{
		Directory: h.directory,
		Registry:  h.registry,
		Submitter: h.submitter,
	}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	h.filter = f

	if backend == nil {
		backend = chunkedBackend(http.StatusOK, "chunk-1|", "chunk-2|", "chunk-3")
	}
	h.filterBackend(backend)
	return h
}

func (h *harness) filterBackend(backend http.Handler) {
	wrapped := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.backend.Add(1)
		backend.ServeHTTP(w, r)
	})
	h.handler = h.filter.Wrap(wrapped)
}

func chunkedBackend(status int, chunks ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		for _, c := range chunks {
			_, _ = w.Write([]byte(c))
			w.(http.Flusher).Flush()
		}
	})
}

func signedRequest(t *testing.T, method, path, accessKey, secret string, nonce int64, ts time.Time) *http.Request {
	t.Helper()

	engine, err := signature.NewEngine("")
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:54321"
	s := signature.NewSigner(accessKey, secret, engine)
	s.Now = func() time.Time { return ts }
	s.Nonce = func(int64) int64 { return nonce }
	require.NoError(t, s.Attach(req, "name=openapi"))
	return req
}

func validRequest(t *testing.T) *http.Request {
	t.Helper()
	return signedRequest(t, http.MethodGet, "/api/name", "ak-alice", "alice-secret", 42, now)
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) collaboratorCalls() int32 {
	return h.directory.calls.Load() + h.registry.calls.Load() + h.submitter.calls.Load() + h.backend.Load()
}

func TestNew_MissingDependencies(t *testing.T) {
	t.Parallel()

	sub := &syncSubmitter{counter: &recordingCounter{}}
	tests := []struct {
		name string
		deps Dependencies
	}{
		{name: "directory", deps: Dependencies{Registry: &fakeRegistry{}, Submitter: sub}},
		{name: "registry", deps: Dependencies{Directory: &fakeDirectory{}, Submitter: sub}},
		{name: "submitter", deps: Dependencies{Directory: &fakeDirectory{}, Registry: &fakeRegistry{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(Config{}, tt.deps)
			assert.ErrorIs(t, err, ErrMissingDependency)
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	deps := Dependencies{
		Directory: &fakeDirectory{},
		Registry:  &fakeRegistry{},
		Submitter: &syncSubmitter{counter: &recordingCounter{}},
	}

	_, err := New(Config{AllowedOrigins: []string{"not-an-ip"}}, deps)
	assert.Error(t, err)

	_, err = New(Config{SignatureAlgorithm: "md5"}, deps)
	assert.ErrorIs(t, err, signature.ErrUnsupportedAlgorithm)
}

func TestFilter_MetersEveryChunkOfSuccessfulResponse(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	rec := h.serve(validRequest(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chunk-1|chunk-2|chunk-3", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	calls := h.counter.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, invocation{interfaceID: 101, callerID: 202}, c)
	}
}

func TestFilter_RequestGranularity(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Granularity: metering.GranularityRequest}, nil)
	rec := h.serve(validRequest(t))

	assert.Equal(t, "chunk-1|chunk-2|chunk-3", rec.Body.String())
	assert.Len(t, h.counter.Calls(), 1)
}

func TestFilter_FailingCounterStillDeliversResponse(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	h.counter.fail = true

	rec := h.serve(validRequest(t))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chunk-1|chunk-2|chunk-3", rec.Body.String())
	assert.Len(t, h.counter.Calls(), 3)
}

func TestFilter_FailingCounterThroughDispatcher(t *testing.T) {
	t.Parallel()

	counter := &recordingCounter{fail: true}
	d := metering.NewDispatcher(counter, metering.WithWorkers(2))
	f, err := New(Config{AllowedOrigins: []string{"127.0.0.0/8"}}, Dependencies{
		Directory: &fakeDirectory{},
		Registry:  &fakeRegistry{},
		Submitter: d,
	}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.Wrap(chunkedBackend(http.StatusOK, "a", "b", "c")).ServeHTTP(rec, validRequest(t))

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Body.String())
	assert.Len(t, counter.Calls(), 3)
}

func TestFilter_NonSuccessBackendIsNotMetered(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, Config{}, chunkedBackend(status, "error ", "body"))
			rec := h.serve(validRequest(t))

			assert.Equal(t, status, rec.Code)
			assert.Equal(t, "error body", rec.Body.String())
			assert.Empty(t, h.counter.Calls())
		})
	}
}

func TestFilter_OriginNotAllowed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	req := validRequest(t)
	req.RemoteAddr = "10.1.2.3:40000"

	rec := h.serve(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Zero(t, h.collaboratorCalls())
}

func TestFilter_DecisionsAreCounted(t *testing.T) {
	denied := getMetrics().decisionsTotal.WithLabelValues(OutcomeRejected, ReasonOriginDenied)
	metered := getMetrics().decisionsTotal.WithLabelValues(metering.OutcomeMetered.String(), "")
	deniedBefore := testutil.ToFloat64(denied)
	meteredBefore := testutil.ToFloat64(metered)

	h := newHarness(t, Config{}, nil)
	req := validRequest(t)
	req.RemoteAddr = "10.1.2.3:40000"
	h.serve(req)
	h.serve(validRequest(t))

	assert.Equal(t, deniedBefore+1, testutil.ToFloat64(denied))
	assert.Equal(t, meteredBefore+1, testutil.ToFloat64(metered))
}

func TestFilter_ForwardedOriginFromTrustedProxy(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{
		AllowedOrigins: []string{"203.0.113.7"},
		TrustedProxies: []string{"10.0.0.0/8"},
	}, nil)

	req := validRequest(t)
	req.RemoteAddr = "10.0.0.5:40000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.9")
	assert.Equal(t, http.StatusOK, h.serve(req).Code)

	spoofed := validRequest(t)
	spoofed.RemoteAddr = "198.51.100.1:40000"
	spoofed.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, http.StatusForbidden, h.serve(spoofed).Code)
}

func TestFilter_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		req           func(t *testing.T) *http.Request
		wantDirectory bool
		wantRegistry  bool
	}{
		{
			name: "missing headers",
			req: func(t *testing.T) *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/api/name", nil)
				r.RemoteAddr = "127.0.0.1:1"
				return r
			},
		},
		{
			name: "unknown access key",
			req: func(t *testing.T) *http.Request {
				return signedRequest(t, http.MethodGet, "/api/name", "ak-ghost", "alice-secret", 1, now)
			},
			wantDirectory: true,
		},
		{
			name: "nonce at ceiling",
			req: func(t *testing.T) *http.Request {
				return signedRequest(t, http.MethodGet, "/api/name", "ak-alice", "alice-secret", 10000, now)
			},
			wantDirectory: true,
		},
		{
			name: "timestamp exactly at window",
			req: func(t *testing.T) *http.Request {
				return signedRequest(t, http.MethodGet, "/api/name", "ak-alice", "alice-secret", 1, now.Add(-300*time.Second))
			},
			wantDirectory: true,
		},
		{
			name: "wrong secret",
			req: func(t *testing.T) *http.Request {
				return signedRequest(t, http.MethodGet, "/api/name", "ak-alice", "bob-secret", 1, now)
			},
			wantDirectory: true,
		},
		{
			name: "tampered body header",
			req: func(t *testing.T) *http.Request {
				r := validRequest(t)
				r.Header.Set(signature.HeaderBody, "name=other")
				return r
			},
			wantDirectory: true,
		},
		{
			name: "unknown route",
			req: func(t *testing.T) *http.Request {
				return signedRequest(t, http.MethodGet, "/api/unknown", "ak-alice", "alice-secret", 1, now)
			},
			wantDirectory: true,
			wantRegistry:  true,
		},
		{
			name: "known path with wrong method",
			req: func(t *testing.T) *http.Request {
				return signedRequest(t, http.MethodPost, "/api/name", "ak-alice", "alice-secret", 1, now)
			},
			wantDirectory: true,
			wantRegistry:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, Config{}, nil)
			rec := h.serve(tt.req(t))

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Empty(t, rec.Body.String())
			assert.Equal(t, tt.wantDirectory, h.directory.calls.Load() > 0)
			assert.Equal(t, tt.wantRegistry, h.registry.calls.Load() > 0)
			assert.Zero(t, h.backend.Load())
			assert.Empty(t, h.counter.Calls())
		})
	}
}

func TestFilter_CollaboratorFaultsAreForbidden(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	h.directory.err = errors.New("directory down")
	rec := h.serve(validRequest(t))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, h.registry.calls.Load())

	h = newHarness(t, Config{}, nil)
	h.registry.err = errors.New("registry down")
	rec = h.serve(validRequest(t))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, h.backend.Load())
}

func TestFilter_ReplayWindowAndCeilingFromConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ReplayWindow: 10 * time.Second, NonceCeiling: 100}, nil)

	ok := signedRequest(t, http.MethodGet, "/api/name", "ak-alice", "alice-secret", 99, now.Add(-9*time.Second))
	assert.Equal(t, http.StatusOK, h.serve(ok).Code)

	stale := signedRequest(t, http.MethodGet, "/api/name", "ak-alice", "alice-secret", 1, now.Add(-10*time.Second))
	assert.Equal(t, http.StatusForbidden, h.serve(stale).Code)

	big := signedRequest(t, http.MethodGet, "/api/name", "ak-alice", "alice-secret", 100, now)
	assert.Equal(t, http.StatusForbidden, h.serve(big).Code)
}

func TestFilter_UpdateAllowedOrigins(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, nil)
	require.Equal(t, http.StatusOK, h.serve(validRequest(t)).Code)

	require.NoError(t, h.filter.UpdateAllowedOrigins([]string{"192.0.2.0/24"}))
	assert.Equal(t, http.StatusForbidden, h.serve(validRequest(t)).Code)

	assert.Error(t, h.filter.UpdateAllowedOrigins([]string{"bogus"}))
}

func TestFilter_EmptySuccessfulResponse(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := h.serve(validRequest(t))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.counter.Calls())
}

func TestFilter_MeteringFaultFallsBackToPassThrough(t *testing.T) {
	t.Parallel()

	f, err := New(Config{AllowedOrigins: []string{"127.0.0.1"}}, Dependencies{
		Directory: &fakeDirectory{},
		Registry:  &fakeRegistry{},
		Submitter: panickingSubmitter{},
	}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.Wrap(chunkedBackend(http.StatusOK, "x", "y", "z")).ServeHTTP(rec, validRequest(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xyz", rec.Body.String())
}

type panickingSubmitter struct{}

func (panickingSubmitter) Submit(context.Context, int64, int64) bool {
	panic("submit failed")
}
