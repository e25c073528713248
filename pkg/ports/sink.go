package ports

import (
	"time"

	"github.com/user/playcore/pkg/pipeline"
)

// PresentationSink displays decoded pictures. The sink does not own the
// picture; the caller releases it after Present returns.
type PresentationSink interface {
	Present(pic *pipeline.Picture) error
	Close() error
}

// AudioDevice is an output device with its own monotonically increasing clock.
type AudioDevice interface {
	// Now returns the device clock.
	Now() time.Duration

	// Schedule queues buf to start playing at device time at, scaled by gain.
	Schedule(buf *pipeline.AudioBuffer, at time.Duration, gain float64) error

	// SetGain changes the gain of audio that has not been played yet, where supported.
	SetGain(gain float64)

	// Suspend stops the device clock and output.
	Suspend()

	// Resume restarts the device clock and output.
	Resume()

	// Flush drops everything scheduled but not yet played.
	Flush()

	Close() error
}

// FrameScheduler is the host's per-frame callback primitive.
type FrameScheduler interface {
	// RequestFrame runs fn once on the next frame. The returned func cancels
	// the request if it has not run yet.
	RequestFrame(fn func()) (cancel func())
}

// EventSink receives playback events.
type EventSink interface {
	Publish(ev pipeline.Event)
}
