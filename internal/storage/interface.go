package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one object returned by a listing.
type ObjectInfo struct {
	// Key is the full object key within the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// LastModified is the object modification time; nil when the backend
	// did not report one.
	LastModified *time.Time

	// Fingerprint is the object's integrity token (ETag with quotes
	// stripped). Combined with Key it identifies one file version.
	Fingerprint string
}

// ObjectStorage defines the interface for the source object store.
type ObjectStorage interface {
	// List enumerates objects under the prefix, paginating transparently.
	// The result set is capped by the client's configured page budget.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Download opens a streaming reader over an object's content.
	// The caller owns closing the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
