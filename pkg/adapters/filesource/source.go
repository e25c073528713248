// Package filesource opens media from a ports.FileSystem.
package filesource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/user/playcore/pkg/ports"
)

// Source implements ports.ByteSource for local paths and file:// URLs.
type Source struct {
	fs ports.FileSystem
}

// New creates a Source reading from fs.
func New(fs ports.FileSystem) *Source {
	return &Source{fs: fs}
}

// Handles accepts everything that is not another URL scheme.
func (s *Source) Handles(location string) bool {
	if strings.HasPrefix(location, "file://") {
		return true
	}
	return !strings.Contains(location, "://")
}

// Open opens the file and reports its size.
func (s *Source) Open(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	path := strings.TrimPrefix(location, "file://")
	size, err := s.fs.Size(path)
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	r, err := s.fs.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	return r, size, nil
}

var _ ports.ByteSource = (*Source)(nil)
