// Package db is the Postgres persistence store: the append-only run ledger,
// the reference solution table and the derived leaderboard queries.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func (d *DB) Close() {
	d.pool.Close()
}

func NewPSQL(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("could not ping DB: %w", err)
	}

	d := &DB{pool}
	if err := d.migrate(ctx); err != nil {
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}
	return d, nil
}

// Schema notes: `answer2` duplicates `answer` for compatibility with ledgers
// imported from the original sqlite database; the store writes the same value
// to both and only ever reads `answer2`, like the legacy queries did.
// `timestamp` doubles as the verification flag: 0 = unverified.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		code BYTEA NOT NULL,
		day INTEGER NOT NULL,
		part INTEGER NOT NULL,
		time DOUBLE PRECISION NOT NULL,
		answer TEXT NOT NULL,
		answer2 TEXT NOT NULL,
		timestamp BIGINT NOT NULL DEFAULT 0,
		code_hash TEXT DEFAULT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS solutions (
		key TEXT NOT NULL,
		day INTEGER NOT NULL,
		part INTEGER NOT NULL,
		answer TEXT NOT NULL,
		answer2 TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_index ON runs (day, part, user_id, time)`,
	`CREATE INDEX IF NOT EXISTS solutions_idx ON solutions (day, part)`,
}

func (d *DB) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := d.pool.Exec(ctx, m); err != nil {
			return err
		}
	}
	slog.DebugContext(ctx, "Ran store migrations")
	return nil
}
