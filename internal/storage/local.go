package storage

import (
	"context"
	"io"
	"os"

	rlerrors "github.com/roverlog/roverlog/internal/errors"
)

// LocalBlob reads a log file from the local filesystem.
type LocalBlob struct {
	path string
}

// NewLocalBlob creates a blob over a local file path. The file is opened
// lazily; a missing file surfaces on Size or Open.
func NewLocalBlob(path string) *LocalBlob {
	return &LocalBlob{path: path}
}

// Name returns the file path.
func (l *LocalBlob) Name() string {
	return l.path
}

// Size returns the file's size in bytes.
func (l *LocalBlob) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := os.Stat(l.path)
	if err != nil {
		return 0, rlerrors.NewStorageError(rlerrors.CodeStatFailed,
			"failed to stat "+l.path, err)
	}
	return info.Size(), nil
}

// Open returns a reader over the file.
func (l *LocalBlob) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, rlerrors.NewStorageError(rlerrors.CodeOpenFailed,
			"failed to open "+l.path, err)
	}
	return f, nil
}
