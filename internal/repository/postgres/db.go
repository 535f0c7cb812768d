package postgres

import (
	"context"
	"database/sql"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS ride_history (
	seq            BIGSERIAL PRIMARY KEY,
	id             TEXT NOT NULL UNIQUE,
	chain_ride_id  TEXT,
	pickup         TEXT NOT NULL,
	drop_location  TEXT NOT NULL,
	distance_km    NUMERIC NOT NULL,
	fare           NUMERIC NOT NULL,
	fare_wei       NUMERIC,
	status         TEXT NOT NULL,
	driver_id      TEXT,
	rating         SMALLINT NOT NULL DEFAULT 0,
	tx_hash        TEXT,
	request_tx_hash TEXT,
	rating_tx_hash TEXT,
	cancel_reason  TEXT,
	requested_at   TIMESTAMPTZ NOT NULL,
	accepted_at    TIMESTAMPTZ,
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ,
	cancelled_at   TIMESTAMPTZ
)`

// Migrate creates the tables used by this package if they do not exist.
func Migrate(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx, schema)
	return err
}
