package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/openapigw/internal/auth"
)

// Postgres resolves callers from the callers table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a PostgreSQL-backed directory.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// ResolveCaller implements auth.Directory.
func (p *Postgres) ResolveCaller(ctx context.Context, accessKey string) (*auth.Caller, error) {
	var c auth.Caller
	err := p.db.QueryRowContext(ctx, `
		SELECT id, access_key, secret_key
		FROM callers
		WHERE access_key = $1 AND NOT is_deleted`, accessKey,
	).Scan(&c.ID, &c.AccessKey, &c.SecretKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrCallerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying caller: %w", err)
	}
	return &c, nil
}
