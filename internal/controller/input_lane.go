package controller

import (
	"sync"
	"time"

	"epochcore/pkg/daq"
)

// inputLane is the per-device queue/fragment state for push_input_data.
// Each device owns its own lane lock, so different devices never contend.
type inputLane struct {
	mu       sync.Mutex
	fragment *daq.Chunk
	queue    []daq.Chunk
}

func newInputLane() *inputLane {
	return &inputLane{}
}

// drain runs the input-lane algorithm for one incoming chunk against epoch's
// response buffer for device. It must be called with the lane's lock held
// by the caller (Controller.PushInputData acquires it) and only when a
// response is registered for device — an indefinite Epoch never has one, so
// the remaining-duration arithmetic below always applies to a definite
// epoch.Duration.Value.
func (l *inputLane) drain(epoch *daq.Epoch, device string, incoming daq.Chunk) error {
	l.queue = append(l.queue, incoming)

	responseDuration := func() time.Duration {
		return epoch.Responses[device].Data.Duration
	}
	remaining := func() time.Duration {
		return epoch.Duration.Value - responseDuration()
	}

	if l.fragment != nil {
		head, rest := l.fragment.Split(remaining())
		if err := appendHead(epoch, device, head); err != nil {
			return err
		}
		l.fragment = fragmentOrNil(rest)
	}

	for len(l.queue) > 0 && responseDuration() < epoch.Duration.Value {
		if l.fragment != nil {
			return ErrFragmentInvalid
		}
		next := l.queue[0]
		l.queue = l.queue[1:]

		head, rest := next.Split(remaining())
		if err := appendHead(epoch, device, head); err != nil {
			return err
		}
		l.fragment = fragmentOrNil(rest)
	}
	return nil
}

func appendHead(epoch *daq.Epoch, device string, head daq.Chunk) error {
	if head.Duration <= 0 {
		return nil
	}
	return epoch.AppendResponseData(device, head)
}

func fragmentOrNil(rest daq.Chunk) *daq.Chunk {
	if rest.Duration > 0 {
		return &rest
	}
	return nil
}

// reset clears queued and fragment data, called at run_epoch teardown so
// stale input never leaks into the next Epoch: in-flight samples that
// arrive after stop are discarded once the lane is cleared.
func (l *inputLane) reset() {
	l.mu.Lock()
	l.fragment = nil
	l.queue = nil
	l.mu.Unlock()
}
