package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/openapigw/internal/routing"
)

// statusOnline marks interfaces that may be invoked.
const statusOnline = 1

// Postgres resolves online interfaces from the interface_info table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a PostgreSQL-backed registry.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// ResolveRoute implements routing.Registry.
func (p *Postgres) ResolveRoute(ctx context.Context, path, method string) (*routing.RouteInfo, error) {
	var info routing.RouteInfo
	err := p.db.QueryRowContext(ctx, `
		SELECT id, url, method, user_id
		FROM interface_info
		WHERE url = $1 AND method = $2 AND status = $3 AND NOT is_deleted`,
		path, strings.ToUpper(method), statusOnline,
	).Scan(&info.InterfaceID, &info.Path, &info.Method, &info.OwnerCallerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, routing.ErrRouteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying interface: %w", err)
	}
	return &info, nil
}
