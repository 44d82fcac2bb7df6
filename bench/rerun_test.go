package bench

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/ferris-elf/ferris-elf"
	"github.com/matryer/is"
)

type progressLog struct {
	mu    sync.Mutex
	lines []string
}

func (p *progressLog) report(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, s)
}

func (p *progressLog) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lines) == 0 {
		return ""
	}
	return p.lines[len(p.lines)-1]
}

func TestCoordinatorNoTargets(t *testing.T) {
	is := is.New(t)

	store := &fakeStore{}
	h := startHandler(t, testPipeline(store, &fakeSandbox{}, &fakeInputs{}))

	var progress progressLog
	done, err := NewCoordinator(h, store).Run(context.Background(), 99, progress.report)
	is.NoErr(err)
	is.Equal(done, 0)
	is.Equal(progress.last(), "No targets to re-run.")
}

func TestCoordinatorReprocessesTargets(t *testing.T) {
	is := is.New(t)

	code := []byte("fn run() {}")
	store := &fakeStore{
		answers: map[string]string{"input1/3/1": "data"},
		targets: []*ferriself.InvalidRun{
			{Day: 3, Part: 1, Answer: "data", Code: code, CodeHash: ferriself.ContentHash(code)},
		},
	}
	box := &fakeSandbox{}
	in := &fakeInputs{days: map[int]map[string]string{3: {"input1": "data"}}}
	h := startHandler(t, testPipeline(store, box, in))

	var progress progressLog
	done, err := NewCoordinator(h, store).Run(context.Background(), 99, progress.report)
	is.NoErr(err)
	is.Equal(done, 1)

	store.mu.Lock()
	defer store.mu.Unlock()
	is.Equal(len(store.inserted), 0) // reruns update, never insert
	is.Equal(len(store.updates), 1)
}

// A target that fails to build is reported and skipped, and the pass keeps
// going with the remaining targets.
func TestCoordinatorSkipsFailingTarget(t *testing.T) {
	is := is.New(t)

	good := []byte("good")
	bad := []byte("bad")
	store := &fakeStore{
		answers: map[string]string{"input1/3/1": "data"},
		targets: []*ferriself.InvalidRun{
			{Day: 3, Part: 1, Answer: "data", Code: bad, CodeHash: ferriself.ContentHash(bad)},
			{Day: 3, Part: 1, Answer: "data", Code: good, CodeHash: ferriself.ContentHash(good)},
		},
	}
	box := &buildFailOnce{fail: string(bad)}
	in := &fakeInputs{days: map[int]map[string]string{3: {"input1": "data"}}}
	h := startHandler(t, NewPipeline(store, box, in, 2025, ferriself.RunLimits{}))

	var progress progressLog
	done, err := NewCoordinator(h, store).Run(context.Background(), 99, progress.report)
	is.NoErr(err)
	is.Equal(done, 1)

	progress.mu.Lock()
	defer progress.mu.Unlock()
	var failed bool
	for _, line := range progress.lines {
		if strings.HasPrefix(line, "Re-run failed") {
			failed = true
		}
	}
	is.True(failed)
}

// buildFailOnce fails builds of one specific source and passes the rest
// through a plain fakeSandbox.
type buildFailOnce struct {
	fakeSandbox
	fail string
}

func (b *buildFailOnce) Build(ctx context.Context, tag string, source []byte) error {
	if string(source) == b.fail {
		return &ferriself.BuildError{Log: "does not build anymore"}
	}
	return b.fakeSandbox.Build(ctx, tag, source)
}

// staleRerunStore keeps handing out the same target whose update never
// matches any rows, the shape of a group whose recomputed answer drifted.
type staleRerunStore struct {
	fakeStore
	target ferriself.InvalidRun
}

func (s *staleRerunStore) NextInvalidRun(ctx context.Context) (*ferriself.InvalidRun, error) {
	t := s.target
	return &t, nil
}

func (s *staleRerunStore) UpdateRuns(ctx context.Context, day, part int, median float64, answer string, codeHash string) (int64, error) {
	return 0, nil
}

// A target whose rerun succeeds but updates zero rows stays unverified and
// gets selected again; the failure limit must bound that loop too.
func TestCoordinatorBoundsStaleTargets(t *testing.T) {
	is := is.New(t)

	code := []byte("drifted")
	store := &staleRerunStore{target: ferriself.InvalidRun{
		Day: 3, Part: 1, Answer: "old", Code: code, CodeHash: ferriself.ContentHash(code),
	}}
	in := &fakeInputs{days: map[int]map[string]string{3: {"input1": "data"}}}
	h := startHandler(t, NewPipeline(store, &fakeSandbox{}, in, 2025, ferriself.RunLimits{}))

	var progress progressLog
	done, err := NewCoordinator(h, store).Run(context.Background(), 99, progress.report)
	is.NoErr(err)
	is.Equal(done, 0)
	is.Equal(progress.last(), "Too many failed re-runs, giving up.")
}
