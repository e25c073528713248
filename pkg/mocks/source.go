package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/user/playcore/pkg/ports"
)

// ByteSource is a mock implementation of ports.ByteSource serving in-memory data.
type ByteSource struct {
	Scheme string // e.g. "mem://"; empty handles every location
	Data   map[string][]byte

	// ChunkSize limits each Read when positive, to exercise progressive loading.
	ChunkSize int
}

func (m *ByteSource) Handles(location string) bool {
	return m.Scheme == "" || strings.HasPrefix(location, m.Scheme)
}

func (m *ByteSource) Open(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	data, ok := m.Data[location]
	if !ok {
		return nil, 0, fmt.Errorf("source not found: %s", location)
	}
	var r io.Reader = bytes.NewReader(data)
	if m.ChunkSize > 0 {
		r = &chunkReader{r: r, n: m.ChunkSize}
	}
	return io.NopCloser(r), int64(len(data)), nil
}

type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

var _ ports.ByteSource = (*ByteSource)(nil)
