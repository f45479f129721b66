package blobstore

import (
	"context"
	"errors"
)

var (
	// ErrObjectNotFound is returned when a key is absent from the object store.
	ErrObjectNotFound = errors.New("object not found")
	// ErrContentUnavailable marks a remote read that failed for any reason.
	ErrContentUnavailable = errors.New("attachment content unavailable")
)

// ObjectStore is the subset of an S3-compatible API the attachment layer uses.
// Keys are already namespaced by tenant.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte) error
	// DeleteObjects removes keys in quiet mode. Per-object failures are not
	// reported.
	DeleteObjects(ctx context.Context, keys []string) error
}

// FileStore is the local filesystem tier.
type FileStore interface {
	Write(ctx context.Context, checksum string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

var (
	_ ObjectStore = (*S3ObjectStore)(nil)
	_ ObjectStore = (*MemoryObjectStore)(nil)
	_ FileStore   = (*LocalCAS)(nil)
)
