package archive

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestFilesystemPutGetRoundTrip(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	ctx := context.Background()
	body := []byte("experiment contents")

	info, err := store.Put(ctx, "experiment-1", bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(body)) {
		t.Fatalf("info.Size = %d, want %d", info.Size, len(body))
	}

	_, r, err := store.Get(ctx, "experiment-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestFilesystemPutFailsIfKeyExists(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "experiment-1", bytes.NewReader([]byte("a")), 1); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "experiment-1", bytes.NewReader([]byte("b")), 1); err == nil {
		t.Fatal("expected a second put under the same key to fail")
	}
}

func TestFilesystemRejectsPathTraversalKeys(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "../escape", bytes.NewReader([]byte("a")), 1); err == nil {
		t.Fatal("expected a path-traversal key to be rejected")
	}
}

func TestFilesystemHeadMissingKeyFails(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	if _, err := store.Head(context.Background(), "missing"); err == nil {
		t.Fatal("expected Head on a missing key to fail")
	}
}
