package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMirrorArchiveStreamsFileIntoStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.epc")
	if err := os.WriteFile(path, []byte("container bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	store := NewMemory()
	mirror := NewMirror(store)
	if err := mirror.Archive("experiment-1", path); err != nil {
		t.Fatalf("archive: %v", err)
	}

	info, err := store.Head(context.Background(), "experiment-1")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.Size != int64(len("container bytes")) {
		t.Fatalf("info.Size = %d, want %d", info.Size, len("container bytes"))
	}
}

func TestMirrorArchiveFailsOnDuplicateKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.epc")
	if err := os.WriteFile(path, []byte("container bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	store := NewMemory()
	mirror := NewMirror(store)
	if err := mirror.Archive("experiment-1", path); err != nil {
		t.Fatalf("first archive: %v", err)
	}
	if err := mirror.Archive("experiment-1", path); err == nil {
		t.Fatal("expected a second archive under the same key to fail")
	}
}

func TestMirrorArchiveFailsIfFileMissing(t *testing.T) {
	store := NewMemory()
	mirror := NewMirror(store)
	if err := mirror.Archive("experiment-1", filepath.Join(t.TempDir(), "missing.epc")); err == nil {
		t.Fatal("expected archiving a missing file to fail")
	}
}
