//go:build sdl

package sdlout

import (
	"fmt"
	"sync"
	"time"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// AudioDevice implements ports.AudioDevice over an SDL2 queued audio device.
//
// The device clock is the amount of audio actually consumed by SDL, so it
// stops while the device is paused. The device opens on the first buffer
// with that buffer's rate and channel count.
type AudioDevice struct {
	log ports.Logger

	mu      sync.Mutex
	dev     sdl.AudioDeviceID
	pcm     pcmClock
	queued  uint64 // bytes ever queued
	resumed bool
	closed  bool
	buffers int
}

// NewAudioDevice initializes the SDL audio subsystem.
func NewAudioDevice(log ports.Logger) (*AudioDevice, error) {
	log = logger.OrNoop(log)
	if err := sdl.InitSubSystem(sdl.INIT_AUDIO); err != nil {
		return nil, &pipeline.InitializationError{Component: "audio device", Err: err}
	}
	return &AudioDevice{log: log}, nil
}

func (d *AudioDevice) openLocked(rate, channels int) error {
	want := sdl.AudioSpec{
		Freq:     int32(rate),
		Format:   sdl.AUDIO_F32LSB,
		Channels: uint8(channels),
		Samples:  1024,
	}
	var got sdl.AudioSpec
	dev, err := sdl.OpenAudioDevice("", false, &want, &got, 0)
	if err != nil {
		return &pipeline.InitializationError{Component: "audio device", Err: err}
	}
	d.dev = dev
	d.pcm = pcmClock{rate: rate, channels: channels}
	d.log.Info("Audio output: %d Hz, %d channels", rate, channels)
	sdl.PauseAudioDevice(dev, !d.resumed)
	return nil
}

// playedLocked is the number of bytes SDL has consumed.
func (d *AudioDevice) playedLocked() uint64 {
	if d.dev == 0 {
		return 0
	}
	pending := uint64(sdl.GetQueuedAudioSize(d.dev))
	if pending > d.queued {
		return 0
	}
	return d.queued - pending
}

// Now implements ports.AudioDevice.
func (d *AudioDevice) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pcm.duration(d.playedLocked())
}

// Schedule queues buf at device time at, padding any gap with silence.
func (d *AudioDevice) Schedule(buf *pipeline.AudioBuffer, at time.Duration, gain float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return pipeline.ErrDisposed
	}
	if d.dev == 0 {
		if err := d.openLocked(buf.SampleRate, buf.Channels); err != nil {
			return err
		}
	}
	if buf.SampleRate != d.pcm.rate || buf.Channels != d.pcm.channels {
		return fmt.Errorf("audio format %d Hz/%d ch differs from device %d Hz/%d ch",
			buf.SampleRate, buf.Channels, d.pcm.rate, d.pcm.channels)
	}

	if gap := at - d.pcm.duration(d.queued); gap > 0 {
		silence := make([]byte, d.pcm.bytes(gap))
		if err := sdl.QueueAudio(d.dev, silence); err != nil {
			return fmt.Errorf("queue silence: %w", err)
		}
		d.queued += uint64(len(silence))
	}

	data := encodeF32(buf.Samples, gain)
	if err := sdl.QueueAudio(d.dev, data); err != nil {
		return fmt.Errorf("queue audio: %w", err)
	}
	d.queued += uint64(len(data))
	d.buffers++
	return nil
}

// SetGain is a no-op: queued SDL audio cannot be rescaled, and later
// buffers carry their own gain.
func (d *AudioDevice) SetGain(gain float64) {}

// Suspend pauses the device and with it the clock.
func (d *AudioDevice) Suspend() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resumed = false
	if d.dev != 0 {
		sdl.PauseAudioDevice(d.dev, true)
	}
}

// Resume restarts the device.
func (d *AudioDevice) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resumed = true
	if d.dev != 0 {
		sdl.PauseAudioDevice(d.dev, false)
	}
}

// Flush drops queued audio. The clock keeps its value.
func (d *AudioDevice) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == 0 {
		return
	}
	played := d.playedLocked()
	sdl.ClearQueuedAudio(d.dev)
	d.queued = played
}

// Close closes the SDL device.
func (d *AudioDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.dev != 0 {
		sdl.CloseAudioDevice(d.dev)
		d.dev = 0
	}
	sdl.QuitSubSystem(sdl.INIT_AUDIO)
	d.log.Debug("Audio device closed after %d buffers", d.buffers)
	return nil
}

var _ ports.AudioDevice = (*AudioDevice)(nil)
