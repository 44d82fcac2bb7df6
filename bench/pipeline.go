package bench

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferris-elf/ferris-elf"
)

// Store is the slice of the persistence layer the pipeline needs.
type Store interface {
	Answer(ctx context.Context, key string, day, part int) (string, bool, error)
	BestTime(ctx context.Context, userID int64, day, part int) (float64, bool, error)
	InsertRuns(ctx context.Context, runs []*ferriself.Run) error
	UpdateRuns(ctx context.Context, day, part int, median float64, answer string, codeHash string) (int64, error)
}

// Pipeline orchestrates one submission end to end: build once, run once per
// input fixture, parse, verify, fold and persist.
type Pipeline struct {
	store  Store
	box    ferriself.Sandbox
	inputs ferriself.InputStore

	year   int
	limits ferriself.RunLimits
}

func NewPipeline(store Store, box ferriself.Sandbox, inputs ferriself.InputStore, year int, limits ferriself.RunLimits) *Pipeline {
	return &Pipeline{store: store, box: box, inputs: inputs, year: year, limits: limits}
}

// imageTag keys build artifacts by submitter so sequential submissions by
// different users never collide.
func imageTag(userID int64) string {
	return fmt.Sprintf("ferris-elf-%d", userID)
}

// Process runs the full pipeline for one submission. Every failure is
// terminal: on build error, run error, wrong answer or missing fixtures,
// nothing is persisted and the typed error describes the outcome. On success
// the returned report carries the folded statistics.
func (p *Pipeline) Process(ctx context.Context, sub *ferriself.Submission) (*ferriself.Report, error) {
	slog.InfoContext(ctx, "Building submission", slog.Int64("user", sub.UserID), slog.Int("day", sub.Day), slog.Int("part", sub.Part))
	if err := p.box.Build(ctx, imageTag(sub.UserID), sub.Code); err != nil {
		return nil, err
	}

	fixtures, err := p.inputs.Fixtures(ctx, p.year, sub.Day)
	if err != nil {
		return nil, err
	}
	if len(fixtures) == 0 {
		return nil, &ferriself.FetchError{Year: p.year, Day: sub.Day, Err: fmt.Errorf("no fixtures for day %d", sub.Day)}
	}

	var prevBest *float64
	if best, ok, err := p.store.BestTime(ctx, sub.UserID, sub.Day, sub.Part); err != nil {
		return nil, fmt.Errorf("could not look up previous best: %w", err)
	} else if ok {
		prevBest = &best
	}

	var (
		measurements []*ferriself.Measurement
		largestInput int
		verified     bool
	)
	for i, name := range fixtures {
		want, checked, err := p.store.Answer(ctx, name, sub.Day, sub.Part)
		if err != nil {
			return nil, fmt.Errorf("could not look up reference answer: %w", err)
		}

		input, err := p.inputs.Fixture(ctx, p.year, sub.Day, name)
		if err != nil {
			return nil, err
		}
		largestInput = max(largestInput, len(input))

		slog.InfoContext(ctx, "Benchmarking input", slog.Int("fixture", i+1), slog.Int("total", len(fixtures)))
		out, err := p.box.Run(ctx, imageTag(sub.UserID), input, p.limits)
		if err != nil {
			return nil, err
		}

		m, err := ParseOutput(out)
		if err != nil {
			return nil, err
		}

		if checked {
			// Strict gating: every fixture with a curated answer must match.
			// One mismatch aborts the submission with nothing persisted.
			if m.Answer != want {
				return nil, &ferriself.WrongAnswerError{Fixture: i + 1}
			}
			verified = true
		} else {
			slog.InfoContext(ctx, "Cannot verify run", slog.String("answer", m.Answer))
		}

		measurements = append(measurements, m)
	}

	touched, err := p.persist(ctx, sub, measurements, verified)
	if err != nil {
		return nil, err
	}
	rep := Fold(measurements, largestInput, prevBest, verified)
	rep.RerunRows = touched
	return rep, nil
}

// persist writes the outcome and returns how many existing rows a rerun
// touched (zero for normal submissions).
func (p *Pipeline) persist(ctx context.Context, sub *ferriself.Submission, ms []*ferriself.Measurement, verified bool) (int64, error) {
	codeHash := ferriself.ContentHash(sub.Code)

	if sub.Rerun {
		var total int64
		for _, m := range ms {
			touched, err := p.store.UpdateRuns(ctx, sub.Day, sub.Part, float64(m.Median), m.Answer, codeHash)
			if err != nil {
				return 0, fmt.Errorf("could not apply rerun update: %w", err)
			}
			slog.InfoContext(ctx, "Applied rerun update", slog.Int64("rows", touched), slog.String("hash", codeHash))
			total += touched
		}
		return total, nil
	}

	// Unverified rows keep timestamp 0, leaving them eligible for a later
	// rerun once reference solutions are curated.
	var stamp int64
	if verified {
		stamp = time.Now().Unix()
	}
	runs := make([]*ferriself.Run, 0, len(ms))
	for _, m := range ms {
		runs = append(runs, &ferriself.Run{
			UserID:    sub.UserID,
			Code:      sub.Code,
			Day:       sub.Day,
			Part:      sub.Part,
			Time:      float64(m.Median),
			Answer:    m.Answer,
			Timestamp: stamp,
			CodeHash:  codeHash,
		})
	}
	return 0, p.store.InsertRuns(ctx, runs)
}
