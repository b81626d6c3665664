// Package storage defines the artifact store contract shared by the snapshot
// exporter and the backup pipeline. Keys are slash-separated relative paths;
// the backends (s3 bucket or local directory) decide where they land.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ObjectStore is the sink for Parquet snapshots and SQLite backups.
type ObjectStore interface {
	// Put uploads body under key. size must match the body length.
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	// Get opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Stat describes the object without fetching its body.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// ErrObjectNotFound is returned by Get and Stat for keys with no object
// behind them. Backends translate their native not-found errors to it.
var ErrObjectNotFound = errors.New("storage: object not found")

// Content types recorded on uploaded artifacts.
const (
	ContentTypeParquet = "application/vnd.apache.parquet"
	ContentTypeSQLite  = "application/vnd.sqlite3"
)

// ObjectInfo describes a stored artifact.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// PutOptions carries upload metadata.
type PutOptions struct {
	ContentType string
}
