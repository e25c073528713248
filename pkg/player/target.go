package player

import (
	"fmt"
	"time"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/seek"
)

var _ seek.Target = (*Controller)(nil)

// BeginSeek implements seek.Target. It stops the tick loop before anything
// else is touched.
func (c *Controller) BeginSeek() pipeline.PlayerState {
	c.mu.Lock()
	prior := c.state
	if c.disposed || c.dmx == nil {
		c.unlockAndFlush()
		return prior
	}
	if prior == pipeline.StateBuffering {
		prior = pipeline.StatePlaying
	}
	c.stopLoopLocked()
	c.sched.Pause()
	c.afterSeek = pipeline.StateIdle
	c.setStateLocked(pipeline.StateSeeking)
	c.unlockAndFlush()
	return prior
}

// ResetPipeline implements seek.Target.
func (c *Controller) ResetPipeline() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadedLocked(); err != nil {
		return err
	}
	err := c.bridge.Reset()
	c.video.Clear()
	c.audio.Clear()
	c.sched.ResetSchedule()
	c.exhausted, c.starved, c.ended = false, false, false
	return err
}

// Reposition implements seek.Target.
func (c *Controller) Reposition(t time.Duration) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadedLocked(); err != nil {
		return 0, err
	}
	return c.dmx.Seek(t)
}

// Reconfigure implements seek.Target.
func (c *Controller) Reconfigure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadedLocked(); err != nil {
		return err
	}
	return c.configureLocked()
}

// CompleteSeek implements seek.Target.
func (c *Controller) CompleteSeek(prior pipeline.PlayerState, actual time.Duration) {
	c.mu.Lock()
	if c.loadedLocked() != nil {
		c.unlockAndFlush()
		return
	}
	c.seeks++
	c.setCurrentLocked(actual)
	c.resumeLocked(prior)
	c.unlockAndFlush()
}

// AbortSeek implements seek.Target. The prior state is restored when the
// decoder can be configured again at the current position; otherwise the
// controller moves to Error.
func (c *Controller) AbortSeek(prior pipeline.PlayerState, serr *pipeline.SeekError) {
	c.mu.Lock()
	if c.loadedLocked() != nil {
		c.unlockAndFlush()
		return
	}

	if err := c.rollbackLocked(); err != nil {
		serr.Err = fmt.Errorf("%w (rollback: %v)", serr.Err, err)
		c.failLocked(serr)
		c.unlockAndFlush()
		return
	}

	serr.RolledBack = true
	c.log.Warn("Seek failed, restored %s: %v", prior, serr)
	c.emitLocked(pipeline.Event{Kind: pipeline.EventError, Err: serr})
	c.resumeLocked(prior)
	c.unlockAndFlush()
}

func (c *Controller) rollbackLocked() error {
	if err := c.bridge.Reset(); err != nil {
		return err
	}
	c.video.Clear()
	c.audio.Clear()
	c.sched.ResetSchedule()
	if _, err := c.dmx.Seek(c.current); err != nil {
		return err
	}
	return c.configureLocked()
}

// resumeLocked re-enters prior after a seek and restarts the loop when
// playing. A Play or Pause received during the seek takes precedence; Pause
// leaves a seek started from Ready in Ready.
func (c *Controller) resumeLocked(prior pipeline.PlayerState) {
	switch c.afterSeek {
	case pipeline.StatePlaying:
		prior = pipeline.StatePlaying
	case pipeline.StatePaused:
		if prior == pipeline.StatePlaying {
			prior = pipeline.StatePaused
		}
	}
	c.afterSeek = pipeline.StateIdle
	c.sched.Anchor(c.current)
	switch prior {
	case pipeline.StatePlaying:
		c.sched.Resume()
		c.setStateLocked(pipeline.StatePlaying)
		c.startLoopLocked()
	case pipeline.StatePaused:
		c.setStateLocked(pipeline.StatePaused)
	default:
		c.setStateLocked(pipeline.StateReady)
	}
}

func (c *Controller) configureLocked() error {
	for _, track := range c.dmx.Selected() {
		if err := c.bridge.Configure(track); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) loadedLocked() error {
	if c.disposed {
		return pipeline.ErrDisposed
	}
	if c.dmx == nil || c.bridge == nil {
		return fmt.Errorf("no source loaded: %w", pipeline.ErrInvalidState)
	}
	return nil
}
