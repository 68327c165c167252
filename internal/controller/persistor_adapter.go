package controller

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"epochcore/internal/persistor"
	"epochcore/pkg/daq"
)

// HierarchicalBackend adapts *persistor.Session to the GroupBackend
// interface begin_epoch_group/end_epoch_group dispatch to for ".hdf5"
// paths. The persistor's richer, UUID/time.Time-typed API is the one a
// caller should use directly when it already has source/group identities
// in hand; this adapter exists for the thin, label-driven factory path the
// Controller itself exposes.
type HierarchicalBackend struct {
	session *persistor.Session
	clock   daq.Clock

	mu        sync.Mutex
	sourceIDs map[string]uuid.UUID
}

// NewHierarchicalBackend wraps session for use as a Controller GroupBackend.
func NewHierarchicalBackend(session *persistor.Session, clock daq.Clock) *HierarchicalBackend {
	if clock == nil {
		clock = daq.SystemClock{}
	}
	return &HierarchicalBackend{session: session, clock: clock, sourceIDs: make(map[string]uuid.UUID)}
}

// BeginEpochGroup resolves source by label — interning it under the
// Experiment root on first use — then begins an EpochGroup under it.
func (b *HierarchicalBackend) BeginEpochGroup(label, source string) error {
	b.mu.Lock()
	sourceID, ok := b.sourceIDs[source]
	b.mu.Unlock()
	if !ok {
		created, err := b.session.AddSource(source, nil)
		if err != nil {
			return fmt.Errorf("controller: begin epoch group: %w", err)
		}
		sourceID = created.UUID
		b.mu.Lock()
		b.sourceIDs[source] = sourceID
		b.mu.Unlock()
	}
	_, err := b.session.BeginEpochGroup(label, sourceID, b.clock.Now())
	return err
}

// EndEpochGroup ends the persistor's currently open group.
func (b *HierarchicalBackend) EndEpochGroup() error {
	return b.session.EndEpochGroup(b.clock.Now())
}

var _ GroupBackend = (*HierarchicalBackend)(nil)
