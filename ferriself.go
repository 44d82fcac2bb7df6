// Package ferriself holds the domain model for the ferris-elf benchmark
// service: user-submitted Advent of Code solutions are compiled into
// sandboxed images, timed against the real inputs and ranked per day/part.
package ferriself

import (
	"context"
	"time"
)

const Version = "v2.0.0"

// Submission is one user's code targeted at a (day, part). It only lives for
// the duration of one worker cycle and is never persisted as a unit.
type Submission struct {
	UserID int64
	Code   []byte
	Day    int // 1..25
	Part   int // 1 or 2

	// Rerun makes the pipeline update previously unverified rows matched by
	// (day, part, answer, code hash) instead of inserting new ones.
	Rerun bool
}

// Run is one persisted measurement row: (submitter, day, part, fixture).
// Rows are append-only; only Time and Timestamp are ever updated, and only by
// the rerun path.
type Run struct {
	ID     int64
	UserID int64
	Code   []byte
	Day    int
	Part   int
	// Time is the median benchmark time in nanoseconds.
	Time   float64
	Answer string
	// Timestamp doubles as the verification flag: 0 means the row has not
	// been confirmed valid yet and is a rerun candidate.
	Timestamp int64
	CodeHash  string
}

// Measurement is the parsed result of one sandboxed run against one fixture.
// All durations are nanoseconds.
type Measurement struct {
	Answer  string
	Median  int64
	Average int64
	Min     int64
	Max     int64

	// Cache is only present when the sandbox ran under cachegrind.
	Cache *CacheProfile
}

// CacheProfile carries the optional cachegrind counters.
type CacheProfile struct {
	MemoryAccesses int64
	L1InstrMisses  int64
	LLInstrMisses  int64
	L1DataMisses   int64
	LLDataMisses   int64
}

// Report is the submission-level outcome handed back to the frontend.
type Report struct {
	Verified bool
	// Best is the minimum of the per-fixture medians, in nanoseconds.
	Best float64
	// Median is the statistical median of the per-fixture medians.
	Median float64
	// Stdev is computed over the pooled per-fixture minimums and maximums,
	// expressing run-to-run variance rather than per-fixture variance.
	Stdev float64
	// Throughput is an MB/s estimate based on the largest input fixture.
	Throughput float64
	// PrevBest is the submitter's previous best for this (day, part), if any.
	PrevBest *float64
	// RerunRows is the number of ledger rows a rerun updated; always zero for
	// normal submissions. A rerun that touches zero rows did not apply: the
	// recomputed answer no longer matches any stored row.
	RerunRows int64
}

// LeaderboardEntry is a derived (submitter, best time) pair for one
// (day, part). Never persisted.
type LeaderboardEntry struct {
	UserID int64
	Time   float64
}

// DayBest is the global best for one (day, part).
type DayBest struct {
	Day    int
	Part   int
	UserID int64
	Time   float64
}

// AnswerCount is one bucket of the answer-distribution audit query.
type AnswerCount struct {
	Answer string
	Count  int64
}

// InvalidRun identifies a group of unverified rows by natural key, as
// selected for reprocessing by the rerun coordinator.
type InvalidRun struct {
	Day      int
	Part     int
	Answer   string
	Code     []byte
	CodeHash string
}

// RunLimits bounds one sandboxed run.
type RunLimits struct {
	CPUSet      string
	MemoryBytes int64
	Timeout     time.Duration
}

// Sandbox is the container build/run collaborator. Build failures are
// reported as *BuildError, run failures as *RunError.
type Sandbox interface {
	Build(ctx context.Context, tag string, source []byte) error
	Run(ctx context.Context, tag string, input string, limits RunLimits) (string, error)
}

// InputStore is the benchmark fixture collaborator. Fixtures returns the
// fixture names for a (year, day) in a fixed order; unavailability is
// reported as *FetchError.
type InputStore interface {
	Fixtures(ctx context.Context, year int, day int) ([]string, error)
	Fixture(ctx context.Context, year int, day int, name string) (string, error)
}

// Today returns the current Advent of Code day: UTC-5, clamped to 25.
func Today() int {
	day := time.Now().UTC().Add(-5 * time.Hour).Day()
	return min(day, 25)
}
