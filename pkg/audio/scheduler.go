// Package audio schedules decoded audio on an output device so that
// consecutive buffers play back to back, and derives the media clock from
// the device clock.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// Scheduler places audio buffers on an AudioDevice timeline.
type Scheduler struct {
	mu     sync.Mutex
	device ports.AudioDevice
	log    ports.Logger

	volume    float64
	muted     bool
	paused    bool
	nextStart time.Duration

	// media time anchorMedia corresponds to device time anchorDevice
	anchorMedia  time.Duration
	anchorDevice time.Duration

	scheduled int
}

// NewScheduler creates a Scheduler at full volume.
func NewScheduler(device ports.AudioDevice, log ports.Logger) *Scheduler {
	log = logger.OrNoop(log)
	return &Scheduler{
		device: device,
		log:    log,
		volume: 1,
	}
}

// PlayBuffer schedules buf at max(device now, end of the previous buffer)
// and releases it. The device copies the samples before Schedule returns.
func (s *Scheduler) PlayBuffer(buf *pipeline.AudioBuffer) error {
	if buf == nil {
		return nil
	}
	defer buf.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.device.Now(), s.nextStart)
	if err := s.device.Schedule(buf, start, s.gain()); err != nil {
		return fmt.Errorf("schedule audio at %v: %w", buf.Timestamp, err)
	}
	s.nextStart = start + buf.Duration
	s.scheduled++
	return nil
}

// Buffered returns how much scheduled audio has not started playing yet.
func (s *Scheduler) Buffered() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(s.nextStart-s.device.Now(), 0)
}

// Pause stops the device clock. Scheduled audio resumes with it.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.paused = true
	s.device.Suspend()
}

// Resume restarts the device clock after Pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	s.device.Resume()
}

// Paused reports whether the device is suspended.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// ResetSchedule drops scheduled audio so that the next buffer starts at the
// device's current time. Call it whenever the position changes externally.
func (s *Scheduler) ResetSchedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device.Flush()
	s.nextStart = 0
	s.log.Debug("Audio schedule reset after %d buffers", s.scheduled)
	s.scheduled = 0
}

// Anchor declares that the device's current time shows media time t.
func (s *Scheduler) Anchor(t time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchorMedia = t
	s.anchorDevice = s.device.Now()
}

// MediaTime returns the media time implied by the device clock and the last anchor.
func (s *Scheduler) MediaTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchorMedia + max(s.device.Now()-s.anchorDevice, 0)
}

// CurrentTime returns the device clock.
func (s *Scheduler) CurrentTime() time.Duration {
	return s.device.Now()
}

// SetVolume sets the volume, clamped to [0, 1], and returns the stored value.
// While muted the gain stays at zero.
func (s *Scheduler) SetVolume(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = lo.Clamp(v, 0, 1)
	if !s.muted {
		s.device.SetGain(s.volume)
	}
	return s.volume
}

// Mute forces the gain to zero and keeps the volume.
func (s *Scheduler) Mute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = true
	s.device.SetGain(0)
}

// Unmute restores the gain to the stored volume.
func (s *Scheduler) Unmute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = false
	s.device.SetGain(s.volume)
}

// Volume returns the user volume, independent of mute.
func (s *Scheduler) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Muted reports whether output is muted.
func (s *Scheduler) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Close closes the device.
func (s *Scheduler) Close() error {
	return s.device.Close()
}

func (s *Scheduler) gain() float64 {
	if s.muted {
		return 0
	}
	return s.volume
}
