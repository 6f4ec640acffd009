package admission

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGate_InvalidEntries(t *testing.T) {
	t.Parallel()

	_, err := NewGate([]string{"not-an-ip"}, nil)
	assert.Error(t, err)

	_, err = NewGate([]string{"127.0.0.1"}, []string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestGate_Allow(t *testing.T) {
	t.Parallel()

	g, err := NewGate([]string{"127.0.0.1", "10.1.0.0/16", "::1", " "}, nil)
	require.NoError(t, err)

	tests := []struct {
		addr string
		want bool
	}{
		{addr: "127.0.0.1", want: true},
		{addr: "127.0.0.2", want: false},
		{addr: "10.1.200.3", want: true},
		{addr: "10.2.0.1", want: false},
		{addr: "::1", want: true},
		{addr: "::ffff:127.0.0.1", want: true},
		{addr: "", want: false},
		{addr: "localhost", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, g.Allow(tt.addr))
		})
	}
}

func TestGate_EmptyAllowListDeniesAll(t *testing.T) {
	t.Parallel()

	g, err := NewGate(nil, nil)
	require.NoError(t, err)
	assert.False(t, g.Allow("127.0.0.1"))
}

func TestGate_Update(t *testing.T) {
	t.Parallel()

	g, err := NewGate([]string{"127.0.0.1"}, nil)
	require.NoError(t, err)
	require.True(t, g.Allow("127.0.0.1"))

	require.NoError(t, g.Update([]string{"192.168.0.0/24"}))
	assert.False(t, g.Allow("127.0.0.1"))
	assert.True(t, g.Allow("192.168.0.9"))

	assert.Error(t, g.Update([]string{"bogus"}))
	assert.True(t, g.Allow("192.168.0.9"), "failed update keeps the previous list")
}

func TestGate_UpdateConcurrentWithAllow(t *testing.T) {
	t.Parallel()

	g, err := NewGate([]string{"127.0.0.1"}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = g.Allow("127.0.0.1")
		}()
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_ = g.Update([]string{"127.0.0.1"})
			} else {
				_ = g.Update([]string{"10.0.0.1"})
			}
		}()
	}
	wg.Wait()
}

func TestGate_ClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trusted []string
		remote  string
		xff     string
		want    string
	}{
		{name: "no trusted proxies ignores xff", remote: "1.2.3.4:5555", xff: "9.9.9.9", want: "1.2.3.4"},
		{name: "untrusted peer ignores xff", trusted: []string{"10.0.0.0/8"}, remote: "1.2.3.4:5555", xff: "9.9.9.9", want: "1.2.3.4"},
		{name: "trusted peer uses xff", trusted: []string{"10.0.0.0/8"}, remote: "10.0.0.2:80", xff: "9.9.9.9", want: "9.9.9.9"},
		{name: "rightmost untrusted hop", trusted: []string{"10.0.0.0/8"}, remote: "10.0.0.2:80", xff: "8.8.8.8, 9.9.9.9, 10.0.0.7", want: "9.9.9.9"},
		{name: "all trusted falls back", trusted: []string{"10.0.0.0/8"}, remote: "10.0.0.2:80", xff: "10.0.0.9", want: "10.0.0.2"},
		{name: "trusted peer no xff", trusted: []string{"10.0.0.2"}, remote: "10.0.0.2:80", want: "10.0.0.2"},
		{name: "ipv6 remote", remote: "[::1]:8080", want: "::1"},
		{name: "no port", remote: "127.0.0.1", want: "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g, err := NewGate(nil, tt.trusted)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set(HeaderXForwardedFor, tt.xff)
			}
			assert.Equal(t, tt.want, g.ClientIP(req))
		})
	}
}
