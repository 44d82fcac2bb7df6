package bench

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/ferris-elf/ferris-elf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ferriself_queue_depth",
		Help: "Submissions waiting in the benchmark queue",
	})
	processedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ferriself_submissions_total",
		Help: "Processed submissions by outcome",
	}, []string{"outcome"})
)

// Item is one queued submission plus the callback that delivers its terminal
// outcome back to whoever enqueued it.
type Item struct {
	Sub *ferriself.Submission

	// Notify receives exactly one of (report, error). A nil Notify drops the
	// outcome, which is what internal requeues want.
	Notify func(rep *ferriself.Report, err error)
}

// submissionQueue is a plain FIFO: benchmark fairness is first come first
// served, there are no priorities to order by.
type submissionQueue struct {
	mu    sync.Mutex
	items []*Item
}

func (q *submissionQueue) Push(it *Item) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
	queueDepth.Set(float64(len(q.items)))
	return len(q.items)
}

func (q *submissionQueue) Pop() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	it := q.items[0]
	q.items = q.items[1:]
	queueDepth.Set(float64(len(q.items)))
	return it
}

func (q *submissionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Handler owns the submission queue and the single worker that drains it.
// Exactly one submission is processed at a time: benchmarks need exclusive
// use of the timing hardware, so parallelism would corrupt measurements.
type Handler struct {
	pipeline *Pipeline

	queue submissionQueue
	wake  chan struct{}
}

func NewHandler(pipeline *Pipeline) *Handler {
	return &Handler{
		pipeline: pipeline,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue never blocks the producer. It returns the number of submissions
// ahead of this one, so the frontend can tell "running" from "queued".
func (h *Handler) Enqueue(it *Item) int {
	pos := h.queue.Push(it) - 1
	select {
	case h.wake <- struct{}{}:
	default:
	}
	return pos
}

// QueueLen reports the current queue depth.
func (h *Handler) QueueLen() int {
	return h.queue.Len()
}

// Run is the worker loop. It drains the queue serially and never terminates
// before ctx does: a failure while processing one submission is logged and
// delivered to its submitter, then the loop moves on.
func (h *Handler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return nil
		case <-h.wake:
			for {
				it := h.queue.Pop()
				if it == nil {
					break
				}
				h.process(ctx, it)
			}
		}
	}
}

func (h *Handler) process(ctx context.Context, it *Item) {
	defer func() {
		if r := recover(); r != nil {
			processedTotal.WithLabelValues("panic").Inc()
			slog.ErrorContext(ctx, "Queue loop panic", slog.Any("err", r), slog.String("stack", string(debug.Stack())))
		}
	}()

	slog.InfoContext(ctx, "Processing submission", slog.Int64("user", it.Sub.UserID),
		slog.Int("day", it.Sub.Day), slog.Int("part", it.Sub.Part), slog.Bool("rerun", it.Sub.Rerun))

	rep, err := h.pipeline.Process(ctx, it.Sub)
	processedTotal.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		slog.WarnContext(ctx, "Submission failed", slog.Any("err", err))
	}
	if it.Notify != nil {
		it.Notify(rep, err)
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		buildErr *ferriself.BuildError
		runErr   *ferriself.RunError
		malErr   *ferriself.MalformedOutputError
		waErr    *ferriself.WrongAnswerError
		fetchErr *ferriself.FetchError
	)
	switch {
	case errors.As(err, &buildErr):
		return "build_error"
	case errors.As(err, &runErr):
		return "run_error"
	case errors.As(err, &malErr):
		return "malformed_output"
	case errors.As(err, &waErr):
		return "wrong_answer"
	case errors.As(err, &fetchErr):
		return "fetch_error"
	default:
		return "internal_error"
	}
}
