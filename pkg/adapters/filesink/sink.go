// Package filesink provides a presentation sink that saves snapshots of the
// presented pictures as PNG files.
package filesink

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// Options configures a Sink.
type Options struct {
	Dir      string
	Every    int // save every Nth presented picture, default 25
	MaxWidth int // 0 keeps the source size
}

// Sink implements ports.PresentationSink by writing snapshots.
type Sink struct {
	opts     Options
	fs       ports.FileSystem
	renderer ports.SnapshotRenderer

	mu        sync.Mutex
	presented int
	duration  time.Duration
	saved     []string
	closed    bool
}

// New creates a new Sink.
func New(opts Options, fs ports.FileSystem, renderer ports.SnapshotRenderer) *Sink {
	if opts.Every <= 0 {
		opts.Every = 25
	}
	return &Sink{opts: opts, fs: fs, renderer: renderer}
}

// SetDuration sets the duration used for the progress bar. Zero hides it.
func (s *Sink) SetDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration = d
}

// Present saves the picture when it is due.
func (s *Sink) Present(pic *pipeline.Picture) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return pipeline.ErrDisposed
	}
	index := s.presented
	s.presented++
	if index%s.opts.Every != 0 {
		s.mu.Unlock()
		return nil
	}
	if index == 0 {
		if err := s.fs.MkdirAll(s.opts.Dir); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	overlay := ports.Overlay{Caption: FormatTimestamp(pic.Timestamp), Progress: -1}
	if s.duration > 0 {
		overlay.Progress = float64(pic.Timestamp) / float64(s.duration)
	}
	s.mu.Unlock()

	img := s.renderer.Render(pic, overlay, s.opts.MaxWidth)
	data, err := s.renderer.EncodePNG(img)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(s.opts.Dir, fmt.Sprintf("snapshot-%05d.png", index))
	if err := s.fs.WriteFile(path, data); err != nil {
		return err
	}

	s.mu.Lock()
	s.saved = append(s.saved, path)
	s.mu.Unlock()
	return nil
}

// Close stops accepting pictures.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Saved returns the paths written so far.
func (s *Sink) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

// FormatTimestamp renders t as mm:ss.mmm.
func FormatTimestamp(t time.Duration) string {
	ms := t.Milliseconds()
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, ms/1000%60, ms%1000)
}

// Ensure Sink implements ports.PresentationSink
var _ ports.PresentationSink = (*Sink)(nil)
