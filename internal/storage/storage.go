package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound reports a missing object key. Statement resolution maps
// it to its own not-found error so callers never see store internals.
var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore is the surface the statement resolver and the result exporter
// need: fetch SQL sources by key and upload exported result sets.
type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}
