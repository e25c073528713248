// Package nullsink provides a presentation sink that discards pictures.
package nullsink

import (
	"sync/atomic"
	"time"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// Sink is a no-op implementation of ports.PresentationSink.
// It only counts what it is shown.
type Sink struct {
	presented atomic.Int64
	last      atomic.Int64
}

// New creates a new Sink.
func New() *Sink {
	return &Sink{}
}

// Present discards the picture.
func (s *Sink) Present(pic *pipeline.Picture) error {
	s.presented.Add(1)
	s.last.Store(int64(pic.Timestamp))
	return nil
}

// Close does nothing.
func (s *Sink) Close() error {
	return nil
}

// Presented returns the number of pictures shown so far.
func (s *Sink) Presented() int {
	return int(s.presented.Load())
}

// Last returns the timestamp of the most recent picture.
func (s *Sink) Last() time.Duration {
	return time.Duration(s.last.Load())
}

// Ensure Sink implements ports.PresentationSink
var _ ports.PresentationSink = (*Sink)(nil)
