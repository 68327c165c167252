package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"epochcore/internal/observability"
)

// persistTask is one unit of work submitted to the serial persistence
// worker. done receives exactly one value (nil or the task's error) once
// fn has run, letting the submitter await only its own task without
// blocking on, or being blocked by, any other queued task.
type persistTask struct {
	fn   func(ctx context.Context) error
	done chan error
}

// persistWorker is the Controller's single-worker persistence scheduler. A
// long-lived channel gives strict FIFO ordering across the Controller's
// whole lifetime — not just within one run_epoch. errgroup supervises the
// worker goroutine's lifecycle so a fatal error or context cancellation can
// be observed and propagated via Wait.
type persistWorker struct {
	tasks chan persistTask

	group  *errgroup.Group
	cancel context.CancelFunc

	depth *observability.PrometheusRecorder // optional; nil-safe

	mu        sync.Mutex
	queueSize int
}

// newPersistWorker starts the worker goroutine. parent bounds the worker's
// lifetime; cancelling parent (or calling Close) stops it after any
// in-flight task finishes — a task already writing always runs to
// completion rather than being interrupted mid-write.
func newPersistWorker(parent context.Context, rec *observability.PrometheusRecorder) *persistWorker {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	w := &persistWorker{
		tasks:  make(chan persistTask),
		group:  group,
		cancel: cancel,
		depth:  rec,
	}
	group.Go(func() error {
		return w.run(gctx)
	})
	return w
}

func (w *persistWorker) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-w.tasks:
			if !ok {
				return nil
			}
			w.dec()
			start := time.Now()
			err := t.fn(ctx)
			if w.depth != nil {
				w.depth.ObservePersist(time.Since(start))
			}
			t.done <- err
		}
	}
}

// Submit enqueues fn and returns a channel that receives its result exactly
// once. Submit itself never blocks the caller on fn's execution, only on
// handing the task to the worker's channel.
func (w *persistWorker) Submit(fn func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)
	w.inc()
	w.tasks <- persistTask{fn: fn, done: done}
	return done
}

func (w *persistWorker) inc() {
	w.mu.Lock()
	w.queueSize++
	if w.depth != nil {
		w.depth.PersistQueueSize.Set(float64(w.queueSize))
	}
	w.mu.Unlock()
}

func (w *persistWorker) dec() {
	w.mu.Lock()
	w.queueSize--
	if w.depth != nil {
		w.depth.PersistQueueSize.Set(float64(w.queueSize))
	}
	w.mu.Unlock()
}

// Close stops accepting new tasks and waits for the worker goroutine to
// drain its current task and exit.
func (w *persistWorker) Close() error {
	w.cancel()
	close(w.tasks)
	if err := w.group.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("controller: persistence worker stopped: %w", err)
	}
	return nil
}
