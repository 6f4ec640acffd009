// Package testutil provides shared test infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq" // postgres driver

	"github.com/vyrodovalexey/openapigw/migrations"
)

// PGTest opens the database named by POSTGRES_URL, applies the embedded
// migrations and returns the handle. The test is skipped when POSTGRES_URL is
// unset. Application tables are truncated on cleanup.
func PGTest(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	ctx := context.Background()
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: %v", err)
	}

	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, `TRUNCATE user_interface_info, interface_info, callers RESTART IDENTITY CASCADE`)
		_ = db.Close()
	})
	return db
}

// SeedCaller inserts a caller and returns its id.
func SeedCaller(t *testing.T, db *sql.DB, accessKey, secretKey string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO callers (access_key, secret_key) VALUES ($1, $2) RETURNING id`,
		accessKey, secretKey,
	).Scan(&id)
	if err != nil {
		t.Fatalf("pgtest: seed caller: %v", err)
	}
	return id
}

// SeedInterface inserts an online interface owned by ownerID and returns its id.
func SeedInterface(t *testing.T, db *sql.DB, path, method string, ownerID int64) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO interface_info (url, method, user_id) VALUES ($1, $2, $3) RETURNING id`,
		path, method, ownerID,
	).Scan(&id)
	if err != nil {
		t.Fatalf("pgtest: seed interface: %v", err)
	}
	return id
}
