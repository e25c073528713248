package player

import (
	"errors"
	"io"
	"time"

	"github.com/user/playcore/pkg/pipeline"
)

func (c *Controller) startLoopLocked() {
	if c.cancelFrame != nil {
		return
	}
	gen := c.loopGen
	c.cancelFrame = c.frames.RequestFrame(func() { c.tick(gen) })
}

// stopLoopLocked cancels the requested frame and invalidates any tick that
// is already waiting for mu.
func (c *Controller) stopLoopLocked() {
	c.loopGen++
	if c.cancelFrame != nil {
		c.cancelFrame()
		c.cancelFrame = nil
	}
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.loopGen || !c.state.Running() || c.disposed {
		c.unlockAndFlush()
		return
	}
	c.cancelFrame = nil

	restart := c.stepLocked()
	if c.state.Running() && !restart {
		c.startLoopLocked()
	}
	c.unlockAndFlush()

	if restart {
		c.seeker.Seek(0, true)
	}
}

// stepLocked runs one tick. It reports whether playback must restart from
// the beginning.
func (c *Controller) stepLocked() bool {
	c.pumpLocked()
	if c.state == pipeline.StateError {
		return false
	}

	target := c.sched.MediaTime()
	c.feedAudioLocked(target)
	c.renderLocked(target)
	if c.state == pipeline.StateError {
		return false
	}

	c.updateBufferingLocked()
	if c.atEndLocked() {
		return c.endOfMediaLocked()
	}
	return false
}

// pumpLocked moves up to c.cycles samples from the demuxer into the bridge.
func (c *Controller) pumpLocked() {
	for i := 0; i < c.cycles; i++ {
		if c.video.Backpressured() || c.audio.Backpressured() {
			return
		}
		sample, err := c.dmx.ReadSample()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if !c.exhausted {
				c.exhausted = true
				c.bridge.Drain()
			}
			return
		case errors.Is(err, pipeline.ErrIncomplete):
			c.starved = true
			return
		default:
			c.failLocked(err)
			return
		}
		c.starved = false

		if err := c.bridge.Decode(sample); err != nil {
			if errors.Is(err, pipeline.ErrNoTrack) {
				continue
			}
			c.failLocked(err)
			return
		}
	}
}

// feedAudioLocked hands queued audio up to target+audioLookahead to the
// scheduler. Buffers that ended before target are skipped.
func (c *Controller) feedAudioLocked(target time.Duration) {
	for {
		u, ok := c.audio.Peek()
		if !ok || u.Audio == nil || u.Audio.Timestamp > target+audioLookahead {
			return
		}
		c.audio.Shift()
		if u.Audio.End() <= target {
			u.Release()
			continue
		}
		if err := c.sched.PlayBuffer(u.Audio); err != nil {
			c.log.Warn("Audio output: %v", err)
		}
	}
}

// renderLocked presents the newest picture due at target. Older due
// pictures are released unseen.
func (c *Controller) renderLocked(target time.Duration) {
	if !c.info.HasVideo() {
		if !c.info.DurationEstimated && c.info.Duration > 0 {
			target = min(target, c.info.Duration)
		}
		c.setCurrentLocked(target)
		return
	}

	var pick *pipeline.Picture
	for {
		u, ok := c.video.Peek()
		if !ok || u.Picture == nil || u.Picture.Timestamp > target {
			break
		}
		c.video.Shift()
		if pick != nil {
			pick.Release()
			c.late++
		}
		pick = u.Picture
	}
	if pick == nil {
		return
	}

	err := c.sink.Present(pick)
	pick.Release()
	if err != nil {
		c.failLocked(&pipeline.InitializationError{Component: "presentation sink", Err: err})
		return
	}
	c.presented++
	c.setCurrentLocked(pick.Timestamp)
}

// updateBufferingLocked enters Buffering when the demuxer waits for bytes
// and nothing is left to present, and leaves it once samples flow again.
// The media clock is held while buffering.
func (c *Controller) updateBufferingLocked() {
	starving := c.starved && !c.exhausted
	if c.info.HasVideo() {
		starving = starving && c.video.Len() == 0
	} else {
		starving = starving && c.audio.Len() == 0 && c.sched.Buffered() == 0
	}

	switch {
	case c.state == pipeline.StatePlaying && starving:
		c.sched.Pause()
		c.setStateLocked(pipeline.StateBuffering)
	case c.state == pipeline.StateBuffering && !starving:
		c.sched.Resume()
		c.setStateLocked(pipeline.StatePlaying)
	}
}

// atEndLocked reports end of media: everything was read, drained from the
// decoders and played out, or the clock passed an authoritative duration. Estimated
// durations never end playback.
func (c *Controller) atEndLocked() bool {
	if c.exhausted && c.bridge.InFlight() == 0 && c.video.Len() == 0 &&
		c.audio.Len() == 0 && c.sched.Buffered() == 0 {
		return true
	}
	return !c.info.DurationEstimated && c.info.Duration > 0 && c.current >= c.info.Duration
}

func (c *Controller) endOfMediaLocked() bool {
	c.stopLoopLocked()
	if c.loop {
		c.log.Debug("End of media at %v, looping", c.current)
		return true
	}

	c.sched.Pause()
	if !c.info.DurationEstimated && c.info.Duration > 0 {
		c.setCurrentLocked(c.info.Duration)
	}
	c.ended = true
	c.log.Debug("End of media at %v", c.current)
	c.setStateLocked(pipeline.StateReady)
	return false
}
