package metering

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/openapigw/internal/observability"
)

type submission struct {
	interfaceID int64
	callerID    int64
}

type recordingSubmitter struct {
	mu    sync.Mutex
	calls []submission
	panic bool
}

func (s *recordingSubmitter) Submit(_ context.Context, interfaceID, callerID int64) bool {
	if s.panic {
		panic("submitter exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, submission{interfaceID: interfaceID, callerID: callerID})
	return true
}

func (s *recordingSubmitter) Calls() []submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submission(nil), s.calls...)
}

var target = Target{InterfaceID: 11, OwnerCallerID: 22}

func TestResponseWriter_MetersEachChunk(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{}
	rec := httptest.NewRecorder()
	rw := NewMeter(sub).Wrap(context.Background(), rec, target)

	chunks := [][]byte{[]byte("alpha-"), []byte("beta-"), []byte("gamma")}
	rw.WriteHeader(http.StatusOK)
	for _, c := range chunks {
		n, err := rw.Write(c)
		require.NoError(t, err)
		assert.Equal(t, len(c), n)
	}

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alpha-beta-gamma", rec.Body.String())
	assert.Equal(t, OutcomeMetered, rw.Outcome())
	assert.Equal(t, 3, rw.Chunks())
	assert.Equal(t, int64(16), rw.BytesWritten())

	calls := sub.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, submission{interfaceID: 11, callerID: 22}, c)
	}
}

func TestResponseWriter_ChunkNotAltered(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{}
	rec := httptest.NewRecorder()
	rw := NewMeter(sub, WithChunkLogging(4)).Wrap(context.Background(), rec, target)

	chunk := []byte{0x00, 0xff, 'a', 'b', 'c', 'd', 0x10}
	orig := append([]byte(nil), chunk...)
	_, err := rw.Write(chunk)
	require.NoError(t, err)

	assert.Equal(t, orig, chunk)
	assert.True(t, bytes.Equal(orig, rec.Body.Bytes()))
}

func TestResponseWriter_RequestGranularity(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{}
	rec := httptest.NewRecorder()
	rw := NewMeter(sub, WithGranularity(GranularityRequest)).Wrap(context.Background(), rec, target)

	for _, c := range []string{"", "a", "b", "c"} {
		_, err := rw.Write([]byte(c))
		require.NoError(t, err)
	}

	assert.Equal(t, "abc", rec.Body.String())
	assert.Len(t, sub.Calls(), 1)
}

func TestResponseWriter_NonSuccessPassThrough(t *testing.T) {
	t.Parallel()

	statuses := []int{
		http.StatusMovedPermanently,
		http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusInternalServerError,
		http.StatusBadGateway,
	}
	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			sub := &recordingSubmitter{}
			rec := httptest.NewRecorder()
			rw := NewMeter(sub).Wrap(context.Background(), rec, target)

			rw.WriteHeader(status)
			_, _ = rw.Write([]byte("one"))
			_, _ = rw.Write([]byte("two"))

			assert.Equal(t, status, rec.Code)
			assert.Equal(t, "onetwo", rec.Body.String())
			assert.Equal(t, OutcomePassThrough, rw.Outcome())
			assert.Empty(t, sub.Calls())
		})
	}
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{}
	rec := httptest.NewRecorder()
	rw := NewMeter(sub).Wrap(context.Background(), rec, target)

	_, err := rw.Write([]byte("body"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rw.Status())
	assert.Equal(t, OutcomeMetered, rw.Outcome())
	assert.Len(t, sub.Calls(), 1)
}

func TestResponseWriter_InformationalStatusDoesNotDecide(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{}
	rec := httptest.NewRecorder()
	rw := NewMeter(sub).Wrap(context.Background(), rec, target)

	rw.WriteHeader(http.StatusEarlyHints)
	assert.Equal(t, OutcomePending, rw.Outcome())

	rw.WriteHeader(http.StatusCreated)
	_, err := rw.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMetered, rw.Outcome())
	assert.Equal(t, http.StatusCreated, rw.Status())
	assert.Len(t, sub.Calls(), 1)
}

func TestResponseWriter_MeteringFaultFallsBackToPassThrough(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	logger := observability.NewLoggerFromZap(zap.New(core))

	sub := &recordingSubmitter{panic: true}
	rec := httptest.NewRecorder()
	rw := NewMeter(sub, WithMeterLogger(logger)).Wrap(context.Background(), rec, target)

	for _, c := range []string{"one", "two", "three"} {
		_, err := rw.Write([]byte(c))
		require.NoError(t, err)
	}

	assert.Equal(t, "onetwothree", rec.Body.String())
	assert.Equal(t, OutcomePassThrough, rw.Outcome())
	assert.Equal(t, 1, logs.FilterMessage("metering fault, forwarding unmetered").Len())
}

func TestResponseWriter_StopsAfterCancellation(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{}
	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	rw := NewMeter(sub).Wrap(ctx, rec, target)

	_, err := rw.Write([]byte("first"))
	require.NoError(t, err)

	cancel()
	n, err := rw.Write([]byte("second"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)

	assert.Equal(t, "first", rec.Body.String())
	assert.Len(t, sub.Calls(), 1)
}

func TestResponseWriter_FlushAndUnwrap(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := NewMeter(&recordingSubmitter{}).Wrap(context.Background(), rec, target)

	rw.Flush()
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, rw.Unwrap())
	require.NoError(t, http.NewResponseController(rw).Flush())
}

func TestMeter_ChunkLoggingTruncates(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := observability.NewLoggerFromZap(zap.New(core))
	m := NewMeter(&recordingSubmitter{}, WithMeterLogger(logger), WithChunkLogging(3))

	assert.True(t, m.Observe(context.Background(), target, 0, []byte("abcdef")))

	entries := logs.FilterMessage("response chunk").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0].ContextMap()["excerpt"])
	assert.Equal(t, int64(6), entries[0].ContextMap()["size"])
}

func TestMeter_EmptyChunkIgnored(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{}
	assert.False(t, NewMeter(sub).Observe(context.Background(), target, 0, nil))
	assert.Empty(t, sub.Calls())
}

func TestParseGranularity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Granularity
		wantErr bool
	}{
		{in: "", want: GranularityChunk},
		{in: "chunk", want: GranularityChunk},
		{in: " Request ", want: GranularityRequest},
		{in: "byte", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseGranularity(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pending", OutcomePending.String())
	assert.Equal(t, "metered", OutcomeMetered.String())
	assert.Equal(t, "pass_through", OutcomePassThrough.String())
}
