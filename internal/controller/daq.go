package controller

import (
	"context"
	"time"

	"epochcore/pkg/daq"
)

// DAQHost is the callback surface a DAQController uses to move data during
// one run_epoch call. *Controller implements DAQHost; a concrete DAQ driver
// calls back into it from its own input/output threads.
type DAQHost interface {
	// PullOutputData returns the next chunk of at most requested duration for
	// device, or ok=false if there is no current Epoch or no stimulus bound
	// to device.
	PullOutputData(device string, requested time.Duration) (chunk daq.Chunk, ok bool)
	// PushInputData routes an incoming chunk into the current Epoch's
	// response buffer for device, applying the input-lane split algorithm.
	PushInputData(device string, chunk daq.Chunk)
	// DidOutputData records an output-configuration event for device.
	DidOutputData(device string, outputTime time.Time, duration time.Duration, configs map[string]map[string]any)
}

// DAQController drives one Epoch's acquisition. Run blocks until the DAQ
// stops — either because ctx was cancelled (next_epoch/cancel_epoch) or
// because the device hardware reported an exceptional condition, in which
// case Run returns a non-nil error that RunEpoch wraps in an
// ExceptionalStopError. A concrete DAQ driver is an
// out-of-scope collaborator; this package depends only on the interface.
type DAQController interface {
	Run(ctx context.Context, host DAQHost) error
}
