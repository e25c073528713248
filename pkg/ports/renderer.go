package ports

import (
	"image"

	"github.com/user/playcore/pkg/pipeline"
)

// Overlay describes the information drawn on top of a snapshot.
type Overlay struct {
	Caption  string
	Progress float64 // 0..1, negative hides the progress bar
}

// SnapshotRenderer turns presented pictures into still images.
type SnapshotRenderer interface {
	// Render converts pic into an image no wider than maxWidth and draws the overlay.
	// maxWidth <= 0 keeps the original size.
	Render(pic *pipeline.Picture, overlay Overlay, maxWidth int) image.Image

	// EncodePNG encodes an image as PNG.
	EncodePNG(img image.Image) ([]byte, error)
}
