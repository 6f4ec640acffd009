package migrations

import (
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	// sql.Open does not connect, so the provider is built without a server.
	db, err := sql.Open("postgres", "postgres://localhost/openapigw?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	provider, err := goose.NewProvider(goose.DialectPostgres, db, FS)
	require.NoError(t, err)

	sources := provider.ListSources()
	require.NotEmpty(t, sources)
	for i, src := range sources {
		assert.Equal(t, goose.TypeSQL, src.Type, src.Path)
		assert.Equal(t, int64(i+1), src.Version, "versions are contiguous from 1")
	}
}

func TestEmbeddedMigrations_Annotations(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for _, name := range names {
		data, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		content := string(data)

		up := strings.Index(content, "-- +goose Up")
		down := strings.Index(content, "-- +goose Down")
		assert.Zero(t, up, "%s must start with the Up section", name)
		assert.Greater(t, down, up, "%s must have a Down section after Up", name)
	}
}
