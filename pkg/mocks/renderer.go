package mocks

import (
	"image"
	"sync"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// SnapshotRenderer is a mock implementation of ports.SnapshotRenderer.
type SnapshotRenderer struct {
	mu sync.Mutex

	RenderFunc    func(pic *pipeline.Picture, overlay ports.Overlay, maxWidth int) image.Image
	EncodePNGFunc func(img image.Image) ([]byte, error)

	// Recorded calls for verification
	Overlays []ports.Overlay
}

func (m *SnapshotRenderer) Render(pic *pipeline.Picture, overlay ports.Overlay, maxWidth int) image.Image {
	m.mu.Lock()
	m.Overlays = append(m.Overlays, overlay)
	m.mu.Unlock()
	if m.RenderFunc != nil {
		return m.RenderFunc(pic, overlay, maxWidth)
	}
	return image.NewRGBA(image.Rect(0, 0, pic.Width, pic.Height))
}

func (m *SnapshotRenderer) EncodePNG(img image.Image) ([]byte, error) {
	if m.EncodePNGFunc != nil {
		return m.EncodePNGFunc(img)
	}
	return []byte("png"), nil
}

var _ ports.SnapshotRenderer = (*SnapshotRenderer)(nil)
