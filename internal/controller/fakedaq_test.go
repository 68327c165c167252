package controller

import (
	"context"
	"sync"
	"time"

	"epochcore/pkg/daq"
)

// scriptedDAQ is a DAQController a test drives one step at a time via Step,
// instead of letting it run on its own goroutine loop. Run blocks until the
// test calls Stop or ctx is cancelled, giving tests full control over
// interleaving between pull/push calls and completion detection.
type scriptedDAQ struct {
	mu      sync.Mutex
	stopped chan struct{}
}

// newScriptedDAQ returns a scriptedDAQ ready for Run.
func newScriptedDAQ() *scriptedDAQ {
	return &scriptedDAQ{stopped: make(chan struct{})}
}

// Run blocks until ctx is cancelled or Stop is called.
func (d *scriptedDAQ) Run(ctx context.Context, _ DAQHost) error {
	select {
	case <-ctx.Done():
		return nil
	case <-d.stopped:
		return nil
	}
}

// Stop causes a blocked Run to return nil, as if the hardware finished
// cleanly on its own.
func (d *scriptedDAQ) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.stopped:
	default:
		close(d.stopped)
	}
}

// failingDAQ is a DAQController whose Run immediately returns a fixed
// error, simulating an exceptional device condition on the run_epoch
// acquisition path.
type failingDAQ struct {
	Err error
}

// Run returns d.Err without calling back into host.
func (d *failingDAQ) Run(_ context.Context, _ DAQHost) error {
	return d.Err
}

// pumpDAQ is a DAQController that pulls and pushes on a fixed tick for one
// device pair, driving an Epoch to completion without test code needing its
// own goroutine.
type pumpDAQ struct {
	StimDevice, RespDevice string
	Tick                   time.Duration
	Jitter                 func(daq.Chunk) daq.Chunk
}

// Run pulls/pushes on Tick until host reports no more stimulus or ctx ends.
func (d *pumpDAQ) Run(ctx context.Context, host DAQHost) error {
	ticker := time.NewTicker(d.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			chunk, ok := host.PullOutputData(d.StimDevice, d.Tick)
			if !ok {
				return nil
			}
			host.DidOutputData(d.StimDevice, now, chunk.Duration, nil)
			if d.Jitter != nil {
				chunk = d.Jitter(chunk)
			}
			host.PushInputData(d.RespDevice, chunk)
		}
	}
}
