package bench

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ferris-elf/ferris-elf"
	"github.com/ferris-elf/ferris-elf/internal/config"
)

// RerunStore selects unverified natural-key groups for reprocessing.
type RerunStore interface {
	NextInvalidRun(ctx context.Context) (*ferriself.InvalidRun, error)
}

// Bounded so a backlog where every remaining target fails to build
// (environment drift) or no longer matches its rows cannot spin the
// coordinator forever; random selection already keeps one bad row from
// starving the rest.
var rerunFailureLimit = config.GenFlag("bench.rerun.failure_limit", 25, "Consecutive rerun failures before the coordinator gives up")

// Coordinator drains the store's unverified runs through the pipeline in
// rerun mode. Rerun submissions travel through the same queue as normal ones,
// so the conflicting write patterns (insert vs update) never interleave.
type Coordinator struct {
	handler *Handler
	store   RerunStore
}

func NewCoordinator(handler *Handler, store RerunStore) *Coordinator {
	return &Coordinator{handler: handler, store: store}
}

type rerunOutcome struct {
	rep *ferriself.Report
	err error
}

// Run reprocesses invalid runs until the store has no more targets, reporting
// progress through report. requester keys the build artifacts, the way any
// submission does. Returns the number of successfully reprocessed targets.
func (c *Coordinator) Run(ctx context.Context, requester int64, report func(string)) (int, error) {
	var done, failures int
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		target, err := c.store.NextInvalidRun(ctx)
		if err != nil {
			return done, fmt.Errorf("could not select rerun target: %w", err)
		}
		if target == nil {
			report("No targets to re-run.")
			return done, nil
		}

		report(fmt.Sprintf("Re-running d%dp%d for code %s", target.Day, target.Part, target.CodeHash))

		outcome := make(chan rerunOutcome, 1)
		c.handler.Enqueue(&Item{
			Sub: &ferriself.Submission{
				UserID: requester,
				Code:   target.Code,
				Day:    target.Day,
				Part:   target.Part,
				Rerun:  true,
			},
			Notify: func(rep *ferriself.Report, err error) { outcome <- rerunOutcome{rep, err} },
		})

		select {
		case <-ctx.Done():
			return done, ctx.Err()
		case res := <-outcome:
			if res.err != nil {
				// The original code may no longer build or run; report and
				// let the randomized selection move on to another target.
				failures++
				report(fmt.Sprintf("Re-run failed for code %s: %v", target.CodeHash, res.err))
				slog.WarnContext(ctx, "Rerun target failed", slog.String("hash", target.CodeHash), slog.Any("err", res.err))
				if failures >= rerunFailureLimit.Value() {
					report("Too many failed re-runs, giving up.")
					return done, nil
				}
				continue
			}
			if res.rep == nil || res.rep.RerunRows == 0 {
				// The recomputed answer matched no stored rows, so the group
				// stays unverified and the store may hand it out again. Count
				// it toward the limit or the loop never ends.
				failures++
				report(fmt.Sprintf("Re-run for code %s matched no rows, skipping.", target.CodeHash))
				slog.WarnContext(ctx, "Rerun target matched no rows", slog.String("hash", target.CodeHash))
				if failures >= rerunFailureLimit.Value() {
					report("Too many failed re-runs, giving up.")
					return done, nil
				}
				continue
			}
			done++
			failures = 0
		}
	}
}
