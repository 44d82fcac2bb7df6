package db

import (
	"context"
	"flag"
	"os"
	"testing"

	"github.com/ferris-elf/ferris-elf"
	"github.com/matryer/is"
)

// These tests run against a live database:
//
//	FERRIS_ELF_TEST_DSN="host=localhost user=ferris dbname=ferris_test" go test ./db -testDB
var testDB = flag.Bool("testDB", false, "run tests against a live database")

var (
	store *DB
	ctx   = context.Background()
)

func TestMain(m *testing.M) {
	flag.Parse()
	if *testDB {
		var err error
		store, err = NewPSQL(ctx, os.Getenv("FERRIS_ELF_TEST_DSN"))
		if err != nil {
			panic(err)
		}
	}
	code := m.Run()
	if store != nil {
		store.Close()
	}
	os.Exit(code)
}

func TestInsertAndBestTime(t *testing.T) {
	if !*testDB {
		t.SkipNow()
	}
	is := is.New(t)

	runs := []*ferriself.Run{
		{UserID: 424242, Code: []byte("x"), Day: 24, Part: 1, Time: 5000, Answer: "a", Timestamp: 1, CodeHash: "h1"},
		{UserID: 424242, Code: []byte("x"), Day: 24, Part: 1, Time: 4000, Answer: "a", Timestamp: 1, CodeHash: "h1"},
	}
	is.NoErr(store.InsertRuns(ctx, runs))

	best, ok, err := store.BestTime(ctx, 424242, 24, 1)
	is.NoErr(err)
	is.True(ok)
	is.Equal(best, float64(4000))

	_, ok, err = store.BestTime(ctx, 424242, 24, 2)
	is.NoErr(err)
	is.True(!ok)
}

func TestInsertRunsEmpty(t *testing.T) {
	if !*testDB {
		t.SkipNow()
	}
	is := is.New(t)

	err := store.InsertRuns(ctx, nil)
	is.True(err != nil)
	is.Equal(ferriself.ErrorCode(err), 400)
}

func TestLeaderboardOrdering(t *testing.T) {
	if !*testDB {
		t.SkipNow()
	}
	is := is.New(t)

	entries, err := store.Leaderboard(ctx, 24, 1)
	is.NoErr(err)
	for i := 1; i < len(entries); i++ {
		is.True(entries[i-1].Time <= entries[i].Time)
	}
}

func TestUpdateRunsIdempotent(t *testing.T) {
	if !*testDB {
		t.SkipNow()
	}
	is := is.New(t)

	runs := []*ferriself.Run{
		{UserID: 424243, Code: []byte("y"), Day: 22, Part: 1, Time: 9999, Answer: "7", Timestamp: 0, CodeHash: "idem-hash"},
		{UserID: 424243, Code: []byte("y"), Day: 22, Part: 1, Time: 9500, Answer: "7", Timestamp: 0, CodeHash: "idem-hash"},
	}
	is.NoErr(store.InsertRuns(ctx, runs))

	n, err := store.UpdateRuns(ctx, 22, 1, 500, "7", "idem-hash")
	is.NoErr(err)
	is.Equal(n, int64(2))

	// The rows are verified now, so the same outcome must match nothing
	n, err = store.UpdateRuns(ctx, 22, 1, 500, "7", "idem-hash")
	is.NoErr(err)
	is.Equal(n, int64(0))

	var time float64
	var stamp int64
	is.NoErr(store.pool.QueryRow(ctx,
		"SELECT time, timestamp FROM runs WHERE code_hash = 'idem-hash' LIMIT 1").Scan(&time, &stamp))
	is.Equal(time, float64(500))
	is.Equal(stamp, int64(1))
}

func TestLeaderboardCorrectnessFilter(t *testing.T) {
	if !*testDB {
		t.SkipNow()
	}
	is := is.New(t)

	runs := []*ferriself.Run{
		{UserID: 424244, Code: []byte("z"), Day: 23, Part: 2, Time: 100, Answer: "good", Timestamp: 1, CodeHash: "lb-good"},
		{UserID: 424245, Code: []byte("z"), Day: 23, Part: 2, Time: 50, Answer: "bad", Timestamp: 1, CodeHash: "lb-bad"},
	}
	is.NoErr(store.InsertRuns(ctx, runs))
	_, err := store.pool.Exec(ctx,
		"INSERT INTO solutions (key, day, part, answer, answer2) VALUES ('seed', 23, 2, 'good', 'good')")
	is.NoErr(err)

	entries, err := store.Leaderboard(ctx, 23, 2)
	is.NoErr(err)

	// The faster run ranks nowhere because its answer matches no solution
	var sawGood bool
	for _, e := range entries {
		is.True(e.UserID != 424245)
		if e.UserID == 424244 {
			sawGood = true
		}
	}
	is.True(sawGood)
}

func TestNextInvalidRunTermination(t *testing.T) {
	if !*testDB {
		t.SkipNow()
	}
	is := is.New(t)

	target, err := store.NextInvalidRun(ctx)
	is.NoErr(err)
	if target == nil {
		return
	}

	// Marking the group verified must remove it from the candidate set
	n, err := store.UpdateRuns(ctx, target.Day, target.Part, 1234, target.Answer, target.CodeHash)
	is.NoErr(err)
	is.True(n > 0)
}
