package player

import (
	"context"
	"errors"

	"github.com/user/playcore/pkg/decode"
	"github.com/user/playcore/pkg/demux"
	"github.com/user/playcore/pkg/pipeline"
)

// errSuperseded is returned by a load that was overtaken by another load,
// a Reset or Dispose.
var errSuperseded = errors.New("load superseded")

// Load loads a complete source. On success the controller is Ready.
// Failures move it to Error; Load may be called again from any state.
func (c *Controller) Load(ctx context.Context, data []byte) error {
	return c.load(ctx, data, true)
}

// Open starts loading a source whose bytes are still arriving. prefix must
// hold the whole header (see demux.HeaderReady); the rest is fed with
// Append and EndOfData. Sources that need transcoding fail with an error
// wrapping pipeline.ErrNeedsWholeSource and must be loaded with Load.
func (c *Controller) Open(ctx context.Context, prefix []byte) error {
	return c.load(ctx, prefix, false)
}

type loaded struct {
	dmx      *demux.Demuxer
	bridge   *decode.Bridge
	info     pipeline.MediaInfo
	strategy string
}

func (l *loaded) close() {
	if l.bridge != nil {
		_ = l.bridge.Close()
	}
	if l.dmx != nil {
		_ = l.dmx.Close()
	}
}

func (c *Controller) load(ctx context.Context, data []byte, complete bool) error {
	c.seeker.Cancel()
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return pipeline.ErrDisposed
	}
	c.teardownLocked()
	seq := c.loadSeq
	c.setStateLocked(pipeline.StateLoading)
	c.unlockAndFlush()

	l, err := c.prepare(ctx, data, complete)

	c.mu.Lock()
	if c.disposed || seq != c.loadSeq {
		c.mu.Unlock()
		if l != nil {
			l.close()
		}
		return errSuperseded
	}
	if err != nil {
		if !complete && errors.Is(err, pipeline.ErrIncomplete) {
			c.setStateLocked(pipeline.StateIdle)
		} else {
			c.failLocked(err)
		}
		c.unlockAndFlush()
		return err
	}

	c.dmx, c.bridge, c.info, c.strategy = l.dmx, l.bridge, l.info, l.strategy
	c.seeker.SetDuration(l.info.Duration)
	c.seeker.SetCurrentTime(0)
	c.log.Info("Loaded %s source: %d tracks, duration %v (%s)", l.info.Format, len(l.info.Tracks), l.info.Duration, l.strategy)
	c.emitLocked(pipeline.Event{Kind: pipeline.EventDurationChange, Duration: l.info.Duration})
	c.setStateLocked(pipeline.StateReady)
	c.unlockAndFlush()
	return nil
}

// prepare opens the source, selects the decode strategy, transcodes when
// needed and configures the decoder for the selected tracks.
func (c *Controller) prepare(ctx context.Context, data []byte, complete bool) (*loaded, error) {
	l := &loaded{
		bridge: decode.NewBridge(decode.Options{
			Service:    c.service,
			Transcoder: c.transcoder,
			Decoder:    c.decoderOpt,
			Video:      c.video,
			Audio:      c.audio,
			Logger:     c.log.WithComponent("decode"),
		}),
	}

	var err error
	l.dmx, l.info, err = c.openDemuxer(data, complete)
	if err != nil {
		l.close()
		return nil, err
	}

	strategy, err := l.bridge.SelectStrategy(l.info)
	if err != nil {
		l.close()
		return nil, err
	}

	if strategy.Name() == decode.StrategyTranscode {
		_ = l.dmx.Close()
		l.dmx = nil
		if !complete {
			l.close()
			return nil, pipeline.NewFormatError("load", pipeline.ErrNeedsWholeSource)
		}

		out, err := strategy.Execute(ctx, data)
		if err != nil {
			l.close()
			return nil, err
		}
		l.dmx, l.info, err = c.openDemuxer(out, true)
		if err != nil {
			l.close()
			return nil, err
		}
		// A second transcode is never attempted.
		if _, err := l.bridge.SelectStrategy(l.info); err != nil {
			l.close()
			return nil, err
		}
	}
	l.strategy = strategy.Name()

	for _, track := range l.dmx.Selected() {
		if err := l.bridge.Configure(track); err != nil {
			l.close()
			return nil, err
		}
	}
	return l, nil
}

func (c *Controller) openDemuxer(data []byte, complete bool) (*demux.Demuxer, pipeline.MediaInfo, error) {
	dmx := demux.New(c.log.WithComponent("demux"))
	info, err := dmx.Open(data)
	if err != nil {
		if complete && errors.Is(err, pipeline.ErrIncomplete) {
			return nil, info, pipeline.NewFormatError("open", err)
		}
		return nil, info, err
	}
	if complete {
		if info, _, err = dmx.Finish(); err != nil {
			_ = dmx.Close()
			return nil, info, err
		}
	}
	return dmx, info, nil
}

// Append feeds more bytes of a source opened with Open.
func (c *Controller) Append(data []byte) error {
	return c.feed(func() (pipeline.MediaInfo, bool, error) { return c.dmx.Append(data) })
}

// EndOfData marks the end of a source opened with Open. The duration
// becomes authoritative.
func (c *Controller) EndOfData() error {
	return c.feed(func() (pipeline.MediaInfo, bool, error) { return c.dmx.Finish() })
}

func (c *Controller) feed(op func() (pipeline.MediaInfo, bool, error)) error {
	c.mu.Lock()
	if err := c.loadedLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	info, changed, err := op()
	if err != nil {
		c.failLocked(err)
		c.unlockAndFlush()
		return err
	}
	restart := false
	if changed {
		restart = c.durationChangedLocked(info)
	}
	c.unlockAndFlush()

	if restart {
		c.seeker.Seek(0, true)
	}
	return nil
}

// durationChangedLocked publishes a new duration, re-clamps pending seeks
// and re-evaluates end of media. It reports whether playback must loop.
func (c *Controller) durationChangedLocked(info pipeline.MediaInfo) bool {
	prev := c.info
	c.info = info
	if prev.Duration == info.Duration && prev.DurationEstimated == info.DurationEstimated {
		return false
	}
	c.corrected++
	c.log.Debug("Duration %v -> %v (estimated=%v)", prev.Duration, info.Duration, info.DurationEstimated)
	c.seeker.SetDuration(info.Duration)
	c.emitLocked(pipeline.Event{Kind: pipeline.EventDurationChange, Duration: info.Duration})

	if c.state.Running() && c.atEndLocked() {
		return c.endOfMediaLocked()
	}
	return false
}
