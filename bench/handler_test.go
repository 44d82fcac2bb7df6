package bench

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ferris-elf/ferris-elf"
	"github.com/matryer/is"
)

func startHandler(t *testing.T, p *Pipeline) *Handler {
	t.Helper()
	h := NewHandler(p)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func TestHandlerProcessesInOrder(t *testing.T) {
	is := is.New(t)

	store := &fakeStore{}
	box := &fakeSandbox{}
	in := &fakeInputs{days: map[int]map[string]string{1: {"input1": "data"}}}
	h := startHandler(t, testPipeline(store, box, in))

	var mu sync.Mutex
	var order []int64
	var wg sync.WaitGroup
	for i := int64(1); i <= 5; i++ {
		wg.Add(1)
		userID := i
		h.Enqueue(&Item{
			Sub: &ferriself.Submission{UserID: userID, Code: []byte("x"), Day: 1, Part: 1},
			Notify: func(rep *ferriself.Report, err error) {
				defer wg.Done()
				is.NoErr(err)
				mu.Lock()
				order = append(order, userID)
				mu.Unlock()
			},
		})
	}
	wg.Wait()

	is.Equal(order, []int64{1, 2, 3, 4, 5})
	is.Equal(h.QueueLen(), 0)
}

func TestHandlerEnqueueReportsPosition(t *testing.T) {
	is := is.New(t)

	// No worker running, so positions accumulate
	h := NewHandler(testPipeline(&fakeStore{}, &fakeSandbox{}, &fakeInputs{}))
	sub := &ferriself.Submission{UserID: 1, Code: []byte("x"), Day: 1, Part: 1}
	is.Equal(h.Enqueue(&Item{Sub: sub}), 0)
	is.Equal(h.Enqueue(&Item{Sub: sub}), 1)
	is.Equal(h.Enqueue(&Item{Sub: sub}), 2)
	is.Equal(h.QueueLen(), 3)
}

// A panic while processing one submission must not kill the worker.
func TestHandlerSurvivesPanic(t *testing.T) {
	is := is.New(t)

	store := &fakeStore{}
	box := &fakeSandbox{panics: true}
	in := &fakeInputs{days: map[int]map[string]string{1: {"input1": "data"}}}
	h := startHandler(t, testPipeline(store, box, in))

	h.Enqueue(&Item{Sub: &ferriself.Submission{UserID: 1, Code: []byte("x"), Day: 1, Part: 1}})

	// Wait for the panicking item to be consumed
	deadline := time.After(5 * time.Second)
	for h.QueueLen() > 0 {
		select {
		case <-deadline:
			t.Fatal("queue never drained")
		case <-time.After(10 * time.Millisecond):
		}
	}

	box.mu.Lock()
	box.panics = false
	box.mu.Unlock()

	outcome := make(chan error, 1)
	h.Enqueue(&Item{
		Sub:    &ferriself.Submission{UserID: 2, Code: []byte("y"), Day: 1, Part: 1},
		Notify: func(rep *ferriself.Report, err error) { outcome <- err },
	})

	select {
	case err := <-outcome:
		is.NoErr(err) // worker still alive after the panic
	case <-time.After(5 * time.Second):
		t.Fatal("worker never processed the follow-up submission")
	}
}
