package main

import (
	"context"
	"math/rand"
	"time"

	"epochcore/internal/controller"
	"epochcore/pkg/daq"
)

// fakeDAQ is a self-contained DAQController that pulls stimulus data for
// "stim-0" and echoes jittered copies of it back as "resp-0" responses,
// standing in for real acquisition hardware.
type fakeDAQ struct {
	tick time.Duration
}

func newFakeDAQ() *fakeDAQ {
	return &fakeDAQ{tick: 50 * time.Millisecond}
}

func (f *fakeDAQ) Run(ctx context.Context, host controller.DAQHost) error {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			chunk, ok := host.PullOutputData("stim-0", f.tick)
			if !ok {
				return nil
			}
			host.DidOutputData("stim-0", now, chunk.Duration, nil)
			host.PushInputData("resp-0", jitter(chunk))
		}
	}
}

func jitter(c daq.Chunk) daq.Chunk {
	samples := make([]daq.Measurement, len(c.Samples))
	for i, m := range c.Samples {
		v := m.Quantity + (rand.Float64()-0.5)*0.01
		samples[i] = daq.NewMeasurement(v, m.DisplayUnit, m.BaseUnit, v)
	}
	return daq.Chunk{Samples: samples, SampleRate: c.SampleRate, Duration: c.Duration}
}
