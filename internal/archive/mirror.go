package archive

import (
	"context"
	"fmt"
	"os"
)

// Mirror adapts a Store to persistor.Archiver's Archive(key, path) signature:
// it opens the just-closed container file at path and streams it into store
// under key, create-only.
type Mirror struct {
	store Store
}

// NewMirror wraps store for use as a Session Archiver.
func NewMirror(store Store) *Mirror {
	return &Mirror{store: store}
}

// Archive opens the file at path and Puts it into the backing Store under
// key. Fails if key already exists — an experiment is archived at most once.
func (m *Mirror) Archive(key string, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: opening %s: %w", path, err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("archive: stating %s: %w", path, err)
	}
	if _, err := m.store.Put(context.Background(), key, file, stat.Size()); err != nil {
		return fmt.Errorf("archive: mirroring %s: %w", key, err)
	}
	return nil
}
