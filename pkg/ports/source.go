package ports

import (
	"context"
	"io"
)

// ByteSource opens media sources by location (path, s3://bucket/key, ...).
type ByteSource interface {
	// Handles reports whether the source can open the location.
	Handles(location string) bool

	// Open returns a reader over the source and its size, or -1 when unknown.
	Open(ctx context.Context, location string) (io.ReadCloser, int64, error)
}
