package persistor

import (
	"fmt"
	"time"
)

// Archiver mirrors a just-closed container file to durable blob storage.
// *archive.Mirror implements it on top of any archive.Store (fs/s3/memory
// backends).
type Archiver interface {
	Archive(key string, path string) error
}

// Close ends any open block, then ends each open group back to the root,
// stamps the Experiment's end time, and closes the file. If an Archiver was
// configured, Close attempts to mirror the just-closed file after the local
// close succeeds; an archival failure is returned as a distinct, non-fatal
// error — the primary artifact is already durably closed on disk by the
// time archival runs.
func (s *Session) Close(endTime time.Time, archiver Archiver) error {
	s.mu.Lock()
	if s.openBlockID != nil {
		blockID := *s.openBlockID
		block := s.blocks[blockID]
		block.SetEndTime(endTime)
		if err := s.writeTimelineAttrs(block.UUID.String(), "", "", block.TimelineEntity); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("persistor: close: ending open block: %w", err)
		}
		s.openBlockID = nil
	}
	for len(s.openStack) > 0 {
		top := s.openStack[len(s.openStack)-1]
		group := s.groups[top]
		group.SetEndTime(endTime)
		if err := s.writeTimelineAttrs(group.UUID.String(), "", "", group.TimelineEntity); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("persistor: close: ending open group %s: %w", top, err)
		}
		s.openStack = s.openStack[:len(s.openStack)-1]
	}
	s.experiment.SetEndTime(endTime)
	if err := s.writeTimelineAttrs(s.experiment.UUID.String(), "", "", s.experiment.TimelineEntity); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persistor: close: stamping experiment end time: %w", err)
	}
	path := s.store.Path()
	closeErr := s.store.Close()
	s.mu.Unlock()
	if closeErr != nil {
		return fmt.Errorf("persistor: close: %w", closeErr)
	}

	if archiver == nil {
		return nil
	}
	key := fmt.Sprintf("experiment-%s", s.experiment.UUID)
	if err := archiver.Archive(key, path); err != nil {
		return ArchivalError{Cause: err}
	}
	return nil
}

// ArchivalError wraps a failure in the optional post-close archival mirror.
// It is always returned separately from, and never conflated with, a
// primary-artifact close failure.
type ArchivalError struct {
	Cause error
}

func (e ArchivalError) Error() string { return "persistor: archival mirror failed: " + e.Cause.Error() }
func (e ArchivalError) Unwrap() error  { return e.Cause }
