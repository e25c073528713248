// Package ggrenderer turns decoded pictures into annotated still images
// using the gg library.
package ggrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

var (
	captionBackground = color.RGBA{0, 0, 0, 160}
	captionColor      = color.White
	progressTrack     = color.RGBA{255, 255, 255, 64}
	progressFill      = color.RGBA{229, 9, 20, 255}
)

// Renderer implements ports.SnapshotRenderer.
type Renderer struct {
	// FontPath optionally points to a TrueType font for captions.
	FontPath string
	FontSize float64
}

// New creates a new Renderer using gg's built-in face.
func New() *Renderer {
	return &Renderer{FontSize: 14}
}

// Render copies the picture, downscales it to maxWidth and draws the overlay.
func (r *Renderer) Render(pic *pipeline.Picture, overlay ports.Overlay, maxWidth int) image.Image {
	var img image.Image = toRGBA(pic)

	if maxWidth > 0 && pic.Width > maxWidth {
		height := pic.Height * maxWidth / pic.Width
		img = resize(img, maxWidth, max(height, 1))
	}

	dc := gg.NewContextForImage(img)
	r.drawOverlay(dc, overlay)
	return dc.Image()
}

func (r *Renderer) drawOverlay(dc *gg.Context, overlay ports.Overlay) {
	w, h := float64(dc.Width()), float64(dc.Height())
	barHeight := 0.0
	if overlay.Progress >= 0 {
		barHeight = max(3, h/90)
		dc.SetColor(progressTrack)
		dc.DrawRectangle(0, h-barHeight, w, barHeight)
		dc.Fill()
		dc.SetColor(progressFill)
		dc.DrawRectangle(0, h-barHeight, w*min(overlay.Progress, 1), barHeight)
		dc.Fill()
	}

	if overlay.Caption == "" {
		return
	}
	if r.FontPath != "" {
		// the built-in face stays in place when the font cannot be loaded
		_ = dc.LoadFontFace(r.FontPath, r.FontSize)
	}
	tw, th := dc.MeasureString(overlay.Caption)
	pad := 6.0
	y := h - barHeight - th - 3*pad
	dc.SetColor(captionBackground)
	dc.DrawRoundedRectangle(pad, y, tw+2*pad, th+2*pad, 4)
	dc.Fill()
	dc.SetColor(captionColor)
	dc.DrawStringAnchored(overlay.Caption, 2*pad, y+pad+th/2, 0, 0.35)
}

// EncodePNG encodes an image as PNG.
func (r *Renderer) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// toRGBA wraps or copies the picture buffer. Pictures without pixels
// render as black frames.
func toRGBA(pic *pipeline.Picture) *image.RGBA {
	rect := image.Rect(0, 0, pic.Width, pic.Height)
	dst := image.NewRGBA(rect)
	if len(pic.Pix) < pic.Stride*pic.Height || pic.Stride < pic.Width*4 {
		draw.Draw(dst, rect, image.NewUniform(color.Black), image.Point{}, draw.Src)
		return dst
	}
	for y := 0; y < pic.Height; y++ {
		copy(dst.Pix[y*dst.Stride:], pic.Pix[y*pic.Stride:y*pic.Stride+pic.Width*4])
	}
	return dst
}

func resize(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// Ensure Renderer implements ports.SnapshotRenderer
var _ ports.SnapshotRenderer = (*Renderer)(nil)
