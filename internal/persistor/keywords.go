package persistor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"epochcore/internal/persistor/binary"
)

// entityLocked resolves id to the in-memory Entity of whichever kind of
// persisted node owns it: Device, Source, EpochGroup, or EpochBlock. Callers
// must hold s.mu.
func (s *Session) entityLocked(id uuid.UUID) (*Entity, error) {
	for _, d := range s.devices {
		if d.UUID == id {
			return &d.Entity, nil
		}
	}
	if src, ok := s.sources[id]; ok {
		return &src.Entity, nil
	}
	if group, ok := s.groups[id]; ok {
		return &group.Entity, nil
	}
	if block, ok := s.blocks[id]; ok {
		return &block.Entity, nil
	}
	return nil, fmt.Errorf("persistor: unknown entity %s", id)
}

// AddKeyword adds keyword to the entity identified by id and rewrites its
// persisted "keywords" attribute. Adding an already-present keyword is a
// no-op.
func (s *Session) AddKeyword(id uuid.UUID, keyword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entityLocked(id)
	if err != nil {
		return err
	}
	e.AddKeyword(keyword)
	return s.writeKeywords(id.String(), *e)
}

// RemoveKeyword removes keyword from the entity identified by id. Once the
// entity's keyword set is empty, the persisted "keywords" attribute is
// deleted entirely rather than left as an empty string.
func (s *Session) RemoveKeyword(id uuid.UUID, keyword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entityLocked(id)
	if err != nil {
		return err
	}
	e.RemoveKeyword(keyword)
	return s.writeKeywords(id.String(), *e)
}

// AddNote appends a (time, text) note to the entity identified by id, both
// in memory and to its persisted notes dataset.
func (s *Session) AddNote(id uuid.UUID, at time.Time, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entityLocked(id)
	if err != nil {
		return err
	}
	e.AddNote(at, text)
	return s.store.AppendNote(id.String(), binary.NoteRow{
		TimeTicks:       at.UnixNano(),
		TimeOffsetHours: offsetHours(at),
		Text:            text,
	})
}
