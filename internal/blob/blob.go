// Package blob abstracts the durable object store behind the upload pipeline.
// Backends are selected once at startup; all transfer methods stream so that
// memory use stays independent of object size.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotExist is returned by Get and Stat for unknown keys.
	ErrNotExist = errors.New("blob: object does not exist")
	// ErrNoPublicURL is returned by backends that cannot mint shareable URLs.
	ErrNoPublicURL = errors.New("blob: backend does not support public URLs")
)

type ObjectInfo struct {
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Store is the object-store contract the upload pipeline consumes.
//
// Put must be idempotent under key reuse: re-uploading to the same key
// overwrites the object instead of erroring, which is what makes worker
// redelivery safe.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	PublicURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Name identifies the backend ("minio", "local") and is recorded on
	// each file record.
	Name() string
}
