package counter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Postgres increments total_num and decrements left_num of the
// (interface, caller) row in user_interface_info, creating it on first use.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a PostgreSQL-backed counter.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// RecordInvocation implements metering.Counter.
func (p *Postgres) RecordInvocation(ctx context.Context, interfaceID, callerID int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_interface_info (interface_info_id, user_id, total_num, left_num)
		VALUES ($1, $2, 1, 0)
		ON CONFLICT (interface_info_id, user_id) DO UPDATE SET
			total_num = user_interface_info.total_num + 1,
			left_num = GREATEST(user_interface_info.left_num - 1, 0),
			updated_at = NOW()`,
		interfaceID, callerID,
	)
	if err != nil {
		return fmt.Errorf("recording invocation: %w", err)
	}
	return nil
}

// Usage returns the total and remaining invocation counts for the pair.
func (p *Postgres) Usage(ctx context.Context, interfaceID, callerID int64) (total, left int64, err error) {
	err = p.db.QueryRowContext(ctx, `
		SELECT total_num, left_num FROM user_interface_info
		WHERE interface_info_id = $1 AND user_id = $2`,
		interfaceID, callerID,
	).Scan(&total, &left)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("querying usage: %w", err)
	}
	return total, left, nil
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
