package daq

import "time"

// EventType enumerates the Controller's observer taxonomy.
type EventType string

// Event types emitted by the Controller. All carry a timestamp from the
// controller clock at dispatch time.
const (
	EventReceivedInputData  EventType = "received_input_data"
	EventPushedInputData    EventType = "pushed_input_data"
	EventSavedEpoch         EventType = "saved_epoch"
	EventCompletedEpoch     EventType = "completed_epoch"
	EventDiscardedEpoch     EventType = "discarded_epoch"
	EventNextEpochRequested EventType = "next_epoch_requested"
)

// Event is the payload fanned out to observers. Not every field is
// populated for every Type: Device/Chunk apply to the input-data events,
// Epoch applies to the lifecycle events.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Device    string
	Chunk     Chunk
	Epoch     *Epoch
}

// Observer receives Controller events. Implementations must not block for
// long; an observer that panics or returns is isolated by the dispatcher —
// see internal/controller's event bus — so acquisition never stalls on a
// misbehaving observer.
type Observer interface {
	HandleEvent(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

// HandleEvent calls f(e).
func (f ObserverFunc) HandleEvent(e Event) { f(e) }
