// Package archive mirrors closed experiment containers to durable blob
// storage. It generalizes the fs/s3/memory Store split the rest of this
// codebase's blob tree uses, trimmed to the single create-only Put a
// post-close archival hook needs.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Driver identifies which backend a Store talks to.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// Info describes a stored blob.
type Info struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Store is the minimal blob surface the archival mirror needs: write-once
// Put (fails if the key already exists), Head to check, Get for tests and
// recovery tooling. Unlike the richer core.Store this is generalized from,
// there is no List/PresignURL/Delete — the mirror never needs to enumerate
// or take objects back out of archival storage.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) (Info, error)
	Head(ctx context.Context, key string) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Driver() Driver
}

// Open constructs a Store from environment variables, mirroring the rest
// of this codebase's EPOCHCORE_* configuration convention:
//
//	EPOCHCORE_ARCHIVE_DRIVER    fs (default) | s3 | memory
//	EPOCHCORE_ARCHIVE_FS_ROOT   root directory for the fs driver
//	EPOCHCORE_ARCHIVE_S3_*      see s3.go
func Open(ctx context.Context) (Store, error) {
	driver := strings.ToLower(os.Getenv("EPOCHCORE_ARCHIVE_DRIVER"))
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("EPOCHCORE_ARCHIVE_FS_ROOT")
		if root == "" {
			root = "./archive-data"
		}
		return NewFilesystem(root)
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("archive: unknown driver %q", driver)
	}
}
