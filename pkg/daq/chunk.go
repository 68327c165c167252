package daq

import "time"

// Chunk is a time-bounded, splittable sequence of Measurements sampled at a
// fixed rate. It is the unit of data exchanged between the Controller and a
// device on both the output (stimulus) and input (response) paths.
type Chunk struct {
	Samples    []Measurement
	SampleRate Measurement // quantity in Hz
	Duration   time.Duration
}

// NewChunk constructs a Chunk from samples and a sample rate, deriving the
// duration from sample count and rate. Callers that need an explicit
// duration decoupled from len(samples) (e.g. a synthetic zero-sample probe)
// should set Duration directly on the returned value.
func NewChunk(samples []Measurement, sampleRateHz Measurement) Chunk {
	var dur time.Duration
	if sampleRateHz.QuantityInBaseUnit > 0 {
		seconds := float64(len(samples)) / sampleRateHz.QuantityInBaseUnit
		dur = time.Duration(seconds * float64(time.Second))
	}
	return Chunk{Samples: samples, SampleRate: sampleRateHz, Duration: dur}
}

// sampleDuration returns the time span of a single sample at this chunk's
// rate, or zero if the rate is unset.
func (c Chunk) sampleDuration() time.Duration {
	if c.SampleRate.QuantityInBaseUnit <= 0 || len(c.Samples) == 0 {
		return 0
	}
	return c.Duration / time.Duration(len(c.Samples))
}

// Split divides the chunk at the requested offset, clamped to the chunk's
// own duration. head.Duration == min(at, c.Duration); rest.Duration ==
// c.Duration - head.Duration. Sample boundaries are aligned to the chunk's
// per-sample duration so that samples(head) ++ samples(rest) == samples(c).
func (c Chunk) Split(at time.Duration) (head, rest Chunk) {
	if at <= 0 {
		return Chunk{SampleRate: c.SampleRate}, c
	}
	if at >= c.Duration {
		return c, Chunk{SampleRate: c.SampleRate}
	}
	sampleDur := c.sampleDuration()
	splitIdx := len(c.Samples)
	if sampleDur > 0 {
		splitIdx = int(at / sampleDur)
		if splitIdx > len(c.Samples) {
			splitIdx = len(c.Samples)
		}
	}
	headSamples := append([]Measurement(nil), c.Samples[:splitIdx]...)
	restSamples := append([]Measurement(nil), c.Samples[splitIdx:]...)
	head = Chunk{Samples: headSamples, SampleRate: c.SampleRate, Duration: at}
	rest = Chunk{Samples: restSamples, SampleRate: c.SampleRate, Duration: c.Duration - at}
	return head, rest
}

// IsZero reports whether the chunk carries no duration (and, by
// construction, no samples).
func (c Chunk) IsZero() bool {
	return c.Duration <= 0 && len(c.Samples) == 0
}
