package mocks

import (
	"context"
	"sync"

	"github.com/user/playcore/pkg/ports"
)

// Transcoder is a mock implementation of ports.Transcoder.
type Transcoder struct {
	mu sync.Mutex

	Avail         bool
	TranscodeFunc func(ctx context.Context, src []byte) ([]byte, error)

	// Recorded calls for verification
	TranscodeCalled int
}

func (m *Transcoder) Available() bool {
	return m.Avail
}

func (m *Transcoder) Transcode(ctx context.Context, src []byte) ([]byte, error) {
	m.mu.Lock()
	m.TranscodeCalled++
	m.mu.Unlock()
	if m.TranscodeFunc != nil {
		return m.TranscodeFunc(ctx, src)
	}
	return src, nil
}

// Calls returns the number of Transcode calls.
func (m *Transcoder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TranscodeCalled
}

var _ ports.Transcoder = (*Transcoder)(nil)
