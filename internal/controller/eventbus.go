package controller

import (
	"sync"

	"epochcore/internal/observability"
	"epochcore/pkg/daq"
)

// eventBus fans out Controller events to observers. Two locks are used for
// two different jobs: subMu guards the observer slice itself and is held
// only long enough to snapshot or mutate it; dispatchMu is held across an
// entire emit so that observer callbacks are serialized against each other
// and against concurrent emitters — the event-dispatch lock is orthogonal
// to subscription.
type eventBus struct {
	log observability.Logger

	subMu     sync.RWMutex
	observers []daq.Observer

	dispatchMu sync.Mutex
}

func newEventBus(log observability.Logger) *eventBus {
	if log == nil {
		log = observability.NoopLogger{}
	}
	return &eventBus{log: log}
}

// subscription wraps one registered observer so unsubscribe can find it by
// pointer identity; observer values such as an ObserverFunc are not
// comparable.
type subscription struct{ o daq.Observer }

func (s *subscription) HandleEvent(ev daq.Event) { s.o.HandleEvent(ev) }

// Subscribe registers an observer and returns an unsubscribe function.
func (b *eventBus) Subscribe(o daq.Observer) (unsubscribe func()) {
	entry := &subscription{o: o}
	b.subMu.Lock()
	b.observers = append(b.observers, entry)
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		for i, existing := range b.observers {
			if existing == daq.Observer(entry) {
				b.observers = append(b.observers[:i], b.observers[i+1:]...)
				return
			}
		}
	}
}

// Emit dispatches ev to every observer, in subscription order, one at a
// time. A panicking or erroring observer is isolated: logged and swallowed,
// never propagated to the acquisition thread.
func (b *eventBus) Emit(ev daq.Event) {
	b.subMu.RLock()
	snapshot := append([]daq.Observer(nil), b.observers...)
	b.subMu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	for _, o := range snapshot {
		b.safeHandle(o, ev)
	}
}

func (b *eventBus) safeHandle(o daq.Observer, ev daq.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("observer panicked", "event", string(ev.Type), "panic", r)
		}
	}()
	o.HandleEvent(ev)
}
