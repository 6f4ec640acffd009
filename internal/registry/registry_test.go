package registry

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/openapigw/internal/routing"
)

func TestStatic_ResolveRoute(t *testing.T) {
	t.Parallel()

	s, err := NewStatic([]Entry{
		{ID: 1, Path: "/api/name", Method: "get", OwnerID: 10},
		{ID: 2, Path: "/api/name", Method: "POST", OwnerID: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	tests := []struct {
		path, method string
		wantID       int64
		wantOwner    int64
		wantErr      error
	}{
		{path: "/api/name", method: http.MethodGet, wantID: 1, wantOwner: 10},
		{path: "/api/name", method: "post", wantID: 2, wantOwner: 20},
		{path: "/api/name", method: http.MethodDelete, wantErr: routing.ErrRouteNotFound},
		{path: "/api/name/", method: http.MethodGet, wantErr: routing.ErrRouteNotFound},
		{path: "/api/other", method: http.MethodGet, wantErr: routing.ErrRouteNotFound},
	}
	for _, tt := range tests {
		info, err := s.ResolveRoute(context.Background(), tt.path, tt.method)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, "%s %s", tt.method, tt.path)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.wantID, info.InterfaceID)
		assert.Equal(t, tt.wantOwner, info.OwnerCallerID)
	}
}

func TestStatic_InvalidEntries(t *testing.T) {
	t.Parallel()

	_, err := NewStatic([]Entry{{ID: 1, Path: "/a"}})
	assert.Error(t, err)

	_, err = NewStatic([]Entry{
		{ID: 1, Path: "/a", Method: "GET"},
		{ID: 2, Path: "/a", Method: "get"},
	})
	assert.Error(t, err)
}

func TestStatic_WithResolver(t *testing.T) {
	t.Parallel()

	s, err := NewStatic([]Entry{{ID: 5, Path: "/api/x", Method: "GET", OwnerID: 6}})
	require.NoError(t, err)

	r := routing.NewResolver(s, nil)
	info, err := r.Resolve(context.Background(), "/api/x", "get")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.InterfaceID)

	_, err = r.Resolve(context.Background(), "/api/y", "get")
	assert.ErrorIs(t, err, routing.ErrRouteNotFound)
}
