// Package daq defines the core data model and collaborator interfaces shared
// by the Epoch Runtime (Controller) and the Hierarchical Persistor: scalar
// measurements, time-bounded data chunks, Epochs, Controller events, and
// Epoch-shape rules. The persisted containment tree lives in
// internal/persistor.
package daq

import "time"

// Clock is a monotonic wall-time source, injectable so tests can control
// acquisition timing deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock backed by the runtime wall clock.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }
