// Package storage provides read-side blob abstractions for log files.
// Implementations include the local filesystem and S3; the source engine
// only needs the declared size and a sequential reader.
package storage

import (
	"context"
	"io"
)

// Blob is one readable log file.
type Blob interface {
	// Name returns a human-readable identifier for log lines and errors
	Name() string

	// Size returns the blob's declared size in bytes
	Size(ctx context.Context) (int64, error)

	// Open returns a sequential reader over the blob's bytes. The caller
	// owns the reader and must close it.
	Open(ctx context.Context) (io.ReadCloser, error)
}
