package persistor

import (
	"fmt"

	"github.com/google/uuid"
)

// Delete removes an entity. The Experiment itself is never deletable, nor is
// any EpochGroup on the open traversal stack, nor the currently open block.
// Source deletion additionally requires that no EpochGroup (recursively
// through nested Sources) still references it via a hard-link.
func (s *Session) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.experiment.UUID {
		return fmt.Errorf("persistor: the experiment cannot be deleted")
	}
	for _, open := range s.openStack {
		if open == id {
			return fmt.Errorf("persistor: epoch group %s is open and cannot be deleted", id)
		}
	}
	if s.openBlockID != nil && *s.openBlockID == id {
		return fmt.Errorf("persistor: the open epoch block cannot be deleted")
	}

	if src, ok := s.sources[id]; ok {
		return s.deleteSourceLocked(src)
	}
	if group, ok := s.groups[id]; ok {
		return s.deleteGroupLocked(group)
	}
	if block, ok := s.blocks[id]; ok {
		return s.deleteBlockLocked(block)
	}
	return fmt.Errorf("persistor: unknown entity %s", id)
}

func (s *Session) deleteSourceLocked(src *Source) error {
	pending := []*Source{src}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		refs, err := s.store.ReferenceCount(cur.UUID.String())
		if err != nil {
			return err
		}
		if refs > 0 || len(cur.EpochGroups) > 0 {
			return fmt.Errorf("persistor: source %s is still referenced by %d epoch group(s)", cur.UUID, len(cur.EpochGroups))
		}
		for _, childID := range cur.Children {
			if child, ok := s.sources[childID]; ok {
				pending = append(pending, child)
			}
		}
	}
	if err := s.store.DeleteNode(src.UUID.String()); err != nil {
		return err
	}
	delete(s.sources, src.UUID)
	return nil
}

func (s *Session) deleteGroupLocked(group *EpochGroup) error {
	if len(group.Nested) > 0 || len(group.EpochBlockID) > 0 {
		return fmt.Errorf("persistor: epoch group %s still has nested content", group.UUID)
	}
	if err := s.store.DeleteNode(group.UUID.String()); err != nil {
		return err
	}
	delete(s.groups, group.UUID)
	return nil
}

func (s *Session) deleteBlockLocked(block *EpochBlock) error {
	if len(block.Epochs) > 0 {
		return fmt.Errorf("persistor: epoch block %s still has persisted epochs", block.UUID)
	}
	if err := s.store.DeleteNode(block.UUID.String()); err != nil {
		return err
	}
	delete(s.blocks, block.UUID)
	return nil
}
