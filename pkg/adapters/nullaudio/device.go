// Package nullaudio provides an audio device that plays silence against a
// wall clock. It keeps headless playback paced in real time.
package nullaudio

import (
	"errors"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("nullaudio: device closed")

// Device implements ports.AudioDevice. Its clock advances with the wall
// clock while running and stands still while suspended.
type Device struct {
	clk clock.PassiveClock

	mu        sync.Mutex
	elapsed   time.Duration // accumulated before the current run
	since     time.Time     // start of the current run
	running   bool
	closed    bool
	gain      float64
	scheduled time.Duration
	buffers   int
}

// New creates a running device. A nil clock uses the real clock.
func New(clk clock.PassiveClock) *Device {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Device{clk: clk, since: clk.Now(), running: true, gain: 1}
}

// Now returns the device clock.
func (d *Device) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nowLocked()
}

func (d *Device) nowLocked() time.Duration {
	if !d.running {
		return d.elapsed
	}
	return d.elapsed + d.clk.Since(d.since)
}

// Schedule accounts for the buffer and drops its samples.
func (d *Device) Schedule(buf *pipeline.AudioBuffer, at time.Duration, gain float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.buffers++
	d.scheduled += buf.Duration
	d.gain = gain
	return nil
}

func (d *Device) SetGain(gain float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gain = gain
}

// Suspend freezes the clock.
func (d *Device) Suspend() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.elapsed = d.nowLocked()
	d.running = false
}

// Resume restarts the clock.
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.closed {
		return
	}
	d.since = d.clk.Now()
	d.running = true
}

func (d *Device) Flush() {}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		d.elapsed = d.nowLocked()
		d.running = false
	}
	d.closed = true
	return nil
}

// Stats reports how much audio was scheduled and the last gain applied.
func (d *Device) Stats() (buffers int, scheduled time.Duration, gain float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffers, d.scheduled, d.gain
}

var _ ports.AudioDevice = (*Device)(nil)
