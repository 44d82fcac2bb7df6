package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
)

// The solutions table is reference data curated by operators; the service
// only ever reads it.

// Answer returns the known-correct answer for one fixture of (day, part).
// The second return is false when the fixture has no curated answer, which
// makes the run unverifiable rather than wrong.
func (d *DB) Answer(ctx context.Context, key string, day, part int) (string, bool, error) {
	var answer string
	err := d.pool.QueryRow(ctx,
		"SELECT answer2 FROM solutions WHERE key = $1 AND day = $2 AND part = $3 LIMIT 1",
		key, day, part).Scan(&answer)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(answer), true, nil
}

// HasSolution reports whether any fixture of (day, part) has a curated
// answer. It decides whether the leaderboard filters on correctness.
func (d *DB) HasSolution(ctx context.Context, day, part int) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM solutions WHERE day = $1 AND part = $2)",
		day, part).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
