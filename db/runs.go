package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/ferris-elf/ferris-elf"
	"github.com/jackc/pgx/v5"
)

const insertRunQuery = `INSERT INTO runs (user_id, code, day, part, time, answer, answer2, timestamp, code_hash)
	VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8)`

// InsertRuns writes all per-fixture rows of one submission in a single
// transaction, so the leaderboard never observes a partially written
// submission.
func (d *DB) InsertRuns(ctx context.Context, runs []*ferriself.Run) error {
	if len(runs) == 0 {
		return ferriself.Statusf(400, "No runs to insert")
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, run := range runs {
		if _, err := tx.Exec(ctx, insertRunQuery,
			run.UserID, run.Code, run.Day, run.Part, run.Time, run.Answer, run.Timestamp, run.CodeHash,
		); err != nil {
			return fmt.Errorf("could not insert run: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// UpdateRuns applies a rerun outcome to every still-unverified row matching
// the natural key (day, part, answer, code hash). It marks the rows verified,
// so applying the same outcome twice is a no-op. Returns the number of rows
// touched.
func (d *DB) UpdateRuns(ctx context.Context, day, part int, median float64, answer string, codeHash string) (int64, error) {
	tag, err := d.pool.Exec(ctx, `UPDATE runs
		SET time = $1, timestamp = 1
		WHERE timestamp = 0 AND day = $2 AND part = $3 AND answer2 = $4 AND code_hash = $5`,
		median, day, part, answer, codeHash)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BestTime returns a submitter's fastest time for (day, part). The second
// return is false when they have no runs yet; absence is an expected outcome,
// not an error.
func (d *DB) BestTime(ctx context.Context, userID int64, day, part int) (float64, bool, error) {
	// MIN over zero rows yields a single NULL rather than no rows
	var best *float64
	err := d.pool.QueryRow(ctx,
		"SELECT MIN(time) FROM runs WHERE day = $1 AND part = $2 AND user_id = $3",
		day, part, userID).Scan(&best)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if best == nil {
		return 0, false, nil
	}
	return *best, true, nil
}

// Leaderboard returns each submitter's best time for (day, part), fastest
// first. When any reference solution exists for the pair, only runs whose
// answer matches one are ranked; with no ground truth to filter by, all runs
// rank.
func (d *DB) Leaderboard(ctx context.Context, day, part int) ([]*ferriself.LeaderboardEntry, error) {
	hasSol, err := d.HasSolution(ctx, day, part)
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	if hasSol {
		rows, err = d.pool.Query(ctx, `SELECT runs.user_id, MIN(runs.time) AS best FROM runs
			INNER JOIN solutions ON solutions.day = runs.day AND solutions.part = runs.part AND solutions.answer2 = runs.answer2
			WHERE runs.day = $1 AND runs.part = $2
			GROUP BY runs.user_id ORDER BY best`, day, part)
	} else {
		rows, err = d.pool.Query(ctx, `SELECT user_id, MIN(time) AS best FROM runs
			WHERE day = $1 AND part = $2
			GROUP BY user_id ORDER BY best`, day, part)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ferriself.LeaderboardEntry
	for rows.Next() {
		var e ferriself.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Time); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// BestPerDay returns the global best verified run for every day of the given
// part. Days without any matching reference solution are omitted.
func (d *DB) BestPerDay(ctx context.Context, part int) ([]*ferriself.DayBest, error) {
	rows, err := d.pool.Query(ctx, `SELECT DISTINCT ON (runs.day) runs.day, runs.part, runs.user_id, runs.time FROM runs
		INNER JOIN solutions ON solutions.day = runs.day AND solutions.part = runs.part AND solutions.answer2 = runs.answer2
		WHERE runs.part = $1
		ORDER BY runs.day, runs.time`, part)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bests []*ferriself.DayBest
	for rows.Next() {
		var b ferriself.DayBest
		if err := rows.Scan(&b.Day, &b.Part, &b.UserID, &b.Time); err != nil {
			return nil, err
		}
		bests = append(bests, &b)
	}
	return bests, rows.Err()
}

// AnswerDistribution groups submitted answers for (day, part) by value, for
// auditing consensus before a reference solution is curated.
func (d *DB) AnswerDistribution(ctx context.Context, day, part int) ([]*ferriself.AnswerCount, error) {
	rows, err := d.pool.Query(ctx, `SELECT answer2, COUNT(*) FROM runs
		WHERE day = $1 AND part = $2
		GROUP BY answer2 ORDER BY COUNT(*) DESC`, day, part)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []*ferriself.AnswerCount
	for rows.Next() {
		var c ferriself.AnswerCount
		if err := rows.Scan(&c.Answer, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, &c)
	}
	return counts, rows.Err()
}

// NextInvalidRun picks one unverified natural-key group for reprocessing, or
// nil when none remain. Selection is randomized so a group whose code no
// longer builds cannot starve the rest of the rerun backlog.
func (d *DB) NextInvalidRun(ctx context.Context) (*ferriself.InvalidRun, error) {
	var run ferriself.InvalidRun
	err := d.pool.QueryRow(ctx, `SELECT day, part, answer2, code, code_hash FROM (
			SELECT DISTINCT ON (day, part, answer2, code_hash) day, part, answer2, code, code_hash
			FROM runs
			WHERE timestamp = 0 AND code_hash IS NOT NULL
			ORDER BY day, part, answer2, code_hash, id
		) candidates
		ORDER BY RANDOM() LIMIT 1`).Scan(&run.Day, &run.Part, &run.Answer, &run.Code, &run.CodeHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// RunsWithoutHash returns the ids and code of ledger rows predating the
// content hash column, for backfilling.
func (d *DB) RunsWithoutHash(ctx context.Context) (map[int64][]byte, error) {
	rows, err := d.pool.Query(ctx, "SELECT id, code FROM runs WHERE code_hash IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	missing := make(map[int64][]byte)
	for rows.Next() {
		var id int64
		var code []byte
		if err := rows.Scan(&id, &code); err != nil {
			return nil, err
		}
		missing[id] = code
	}
	return missing, rows.Err()
}

func (d *DB) SetCodeHash(ctx context.Context, id int64, codeHash string) error {
	_, err := d.pool.Exec(ctx, "UPDATE runs SET code_hash = $1 WHERE id = $2", codeHash, id)
	return err
}
