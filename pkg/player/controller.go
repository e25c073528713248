// Package player implements the playback state machine. A Controller owns
// the demuxer, decode bridge, queues and audio scheduler of one source and
// drives them from the host's frame callback.
package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/audio"
	"github.com/user/playcore/pkg/decode"
	"github.com/user/playcore/pkg/demux"
	"github.com/user/playcore/pkg/events"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
	"github.com/user/playcore/pkg/queue"
	"github.com/user/playcore/pkg/seek"
)

// DefaultMaxCyclesPerTick bounds the decode submissions of a single tick.
const DefaultMaxCyclesPerTick = 8

// audioLookahead is how far ahead of the clock audio is handed to the device.
const audioLookahead = 200 * time.Millisecond

// Options configures a Controller.
type Options struct {
	Service    ports.DecodeService
	Transcoder ports.Transcoder // optional
	Sink       ports.PresentationSink
	Device     ports.AudioDevice
	Frames     ports.FrameScheduler
	Events     ports.EventSink // optional, receives every event
	Logger     ports.Logger

	Decoder          pipeline.DecoderOptions
	Queues           pipeline.QueueConfig
	MaxCyclesPerTick int
	SeekDelay        time.Duration
	SeekClock        clock.WithDelayedExecution
	Loop             bool
}

// Controller is the playback state machine.
//
// All state lives behind mu. Ticks, commands and seek steps each run as one
// critical section; events produced inside are published after mu is
// released.
type Controller struct {
	service    ports.DecodeService
	transcoder ports.Transcoder
	sink       ports.PresentationSink
	frames     ports.FrameScheduler
	bus        *events.Bus
	log        ports.Logger
	decoderOpt pipeline.DecoderOptions
	cycles     int

	sched  *audio.Scheduler
	seeker *seek.Coordinator
	video  *queue.Queue[pipeline.DecodedUnit]
	audio  *queue.Queue[pipeline.DecodedUnit]

	mu       sync.Mutex
	state    pipeline.PlayerState
	disposed bool
	loadSeq  uint64
	pending  []pipeline.Event

	dmx      *demux.Demuxer
	bridge   *decode.Bridge
	info     pipeline.MediaInfo
	strategy string

	current   time.Duration
	loop      bool
	ended     bool
	exhausted bool
	starved   bool
	lastErr   error

	// afterSeek is a Play or Pause received while a seek executed. It
	// replaces the pre-seek state once the seek resolves.
	afterSeek pipeline.PlayerState

	loopGen     uint64
	cancelFrame func()

	presented int
	late      int
	seeks     int
	corrected int
}

// New creates a Controller in the Idle state.
func New(opts Options) (*Controller, error) {
	if opts.Sink == nil {
		return nil, &pipeline.InitializationError{Component: "presentation sink", Err: errors.New("not available")}
	}
	if opts.Service == nil {
		return nil, &pipeline.InitializationError{Component: "decoder", Err: errors.New("no decode service")}
	}
	if opts.Device == nil {
		return nil, &pipeline.InitializationError{Component: "audio device", Err: errors.New("not available")}
	}
	if opts.Frames == nil {
		return nil, &pipeline.InitializationError{Component: "frame scheduler", Err: errors.New("not available")}
	}

	log := logger.OrNoop(opts.Logger)
	qc := pipeline.DefaultQueueConfig()
	if opts.Queues.VideoHighWater > 0 {
		qc.VideoHighWater = opts.Queues.VideoHighWater
	}
	if opts.Queues.AudioHighWater > 0 {
		qc.AudioHighWater = opts.Queues.AudioHighWater
	}
	cycles := opts.MaxCyclesPerTick
	if cycles <= 0 {
		cycles = DefaultMaxCyclesPerTick
	}

	release := queue.WithRelease[pipeline.DecodedUnit](func(u pipeline.DecodedUnit) { u.Release() })
	c := &Controller{
		service:    opts.Service,
		transcoder: opts.Transcoder,
		sink:       opts.Sink,
		frames:     opts.Frames,
		bus:        events.NewBus(),
		log:        log,
		decoderOpt: opts.Decoder,
		cycles:     cycles,
		sched:      audio.NewScheduler(opts.Device, log.WithComponent("audio")),
		video:      queue.New(release, queue.WithHighWater[pipeline.DecodedUnit](qc.VideoHighWater)),
		audio:      queue.New(release, queue.WithHighWater[pipeline.DecodedUnit](qc.AudioHighWater)),
		state:      pipeline.StateIdle,
		loop:       opts.Loop,
	}
	if opts.Events != nil {
		c.bus.Subscribe(opts.Events.Publish)
	}
	c.seeker = seek.NewCoordinator(c, seek.Options{
		Delay:  opts.SeekDelay,
		Clock:  opts.SeekClock,
		Logger: log.WithComponent("seek"),
	})
	c.sched.Pause()
	return c, nil
}

// Subscribe registers fn for the given event kinds, or all kinds.
func (c *Controller) Subscribe(fn events.Handler, kinds ...pipeline.EventKind) (unsubscribe func()) {
	return c.bus.Subscribe(fn, kinds...)
}

// Play starts or resumes playback. It is valid from Ready, Paused and
// Buffering. Playing again after the end restarts from the beginning.
// During a seek it is applied once the seek resolves.
func (c *Controller) Play() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	switch c.state {
	case pipeline.StateBuffering, pipeline.StatePlaying:
		c.mu.Unlock()
		return nil
	case pipeline.StateSeeking:
		c.afterSeek = pipeline.StatePlaying
		c.mu.Unlock()
		return nil
	case pipeline.StateReady, pipeline.StatePaused:
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("play from %s: %w", state, pipeline.ErrInvalidState)
	}

	if c.state == pipeline.StateReady && c.ended {
		c.ended = false
		c.setStateLocked(pipeline.StatePlaying)
		c.unlockAndFlush()
		c.seeker.Seek(0, true)
		return nil
	}

	c.sched.Anchor(c.current)
	c.sched.Resume()
	c.setStateLocked(pipeline.StatePlaying)
	c.startLoopLocked()
	c.unlockAndFlush()
	return nil
}

// Pause stops playback. It is valid from Playing and Buffering. During a
// seek it is applied once the seek resolves.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	switch c.state {
	case pipeline.StatePaused:
		c.mu.Unlock()
		return nil
	case pipeline.StateSeeking:
		c.afterSeek = pipeline.StatePaused
		c.mu.Unlock()
		return nil
	case pipeline.StatePlaying, pipeline.StateBuffering:
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("pause from %s: %w", state, pipeline.ErrInvalidState)
	}
	c.stopLoopLocked()
	c.sched.Pause()
	c.setStateLocked(pipeline.StatePaused)
	c.unlockAndFlush()
	return nil
}

// Seek requests a debounced seek to t and returns the clamped target.
func (c *Controller) Seek(t time.Duration) (time.Duration, error) {
	if err := c.canSeek(); err != nil {
		return 0, err
	}
	return c.seeker.Seek(t, false).Target, nil
}

// SeekNow seeks to t without debouncing. It returns after the seek ran.
func (c *Controller) SeekNow(t time.Duration) (time.Duration, error) {
	if err := c.canSeek(); err != nil {
		return 0, err
	}
	return c.seeker.Seek(t, true).Target, nil
}

// SeekRelative requests a debounced seek by d from the pending target or
// the current time.
func (c *Controller) SeekRelative(d time.Duration) (time.Duration, error) {
	if err := c.canSeek(); err != nil {
		return 0, err
	}
	return c.seeker.SeekRelative(d, false).Target, nil
}

// CancelSeek drops a pending debounced seek.
func (c *Controller) CancelSeek() {
	c.seeker.Cancel()
}

// SeekPending reports whether a debounced seek is waiting.
func (c *Controller) SeekPending() bool {
	return c.seeker.IsPending()
}

func (c *Controller) canSeek() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	switch c.state {
	case pipeline.StateReady, pipeline.StatePlaying, pipeline.StatePaused,
		pipeline.StateBuffering, pipeline.StateSeeking:
		return nil
	}
	return fmt.Errorf("seek from %s: %w", c.state, pipeline.ErrInvalidState)
}

// SetVolume sets the output volume, clamped to [0, 1].
func (c *Controller) SetVolume(v float64) error {
	return c.volumeCommand(func() { c.sched.SetVolume(v) })
}

// Mute silences output and keeps the volume.
func (c *Controller) Mute() error {
	return c.volumeCommand(c.sched.Mute)
}

// Unmute restores output at the stored volume.
func (c *Controller) Unmute() error {
	return c.volumeCommand(c.sched.Unmute)
}

func (c *Controller) volumeCommand(apply func()) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return pipeline.ErrDisposed
	}
	apply()
	c.emitLocked(pipeline.Event{Kind: pipeline.EventVolumeChange, Volume: c.sched.Volume(), Muted: c.sched.Muted()})
	c.unlockAndFlush()
	return nil
}

// Volume returns the stored volume.
func (c *Controller) Volume() float64 { return c.sched.Volume() }

// Muted reports whether output is muted.
func (c *Controller) Muted() bool { return c.sched.Muted() }

// SetLoop sets whether playback restarts at the end.
func (c *Controller) SetLoop(loop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = loop
}

// SelectTrack switches the active track of its kind and resynchronizes the
// pipeline at the current position.
func (c *Controller) SelectTrack(id uint32) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.dmx == nil {
		c.mu.Unlock()
		return fmt.Errorf("select track: %w", pipeline.ErrInvalidState)
	}
	track, ok := c.info.Track(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("select track %d: %w", id, pipeline.ErrNoTrack)
	}
	if !c.bridge.ProbeSupport(track.Codec, track.Config) {
		c.mu.Unlock()
		return pipeline.NewFormatError("select track", fmt.Errorf("%w: %s", pipeline.ErrUnsupportedCodec, track.Codec))
	}
	if err := c.dmx.SelectTrack(id); err != nil {
		c.mu.Unlock()
		return err
	}
	at := c.current
	c.unlockAndFlush()

	c.seeker.Seek(at, true)
	return nil
}

// Reset tears down the loaded source and returns to Idle.
func (c *Controller) Reset() error {
	c.seeker.Cancel()
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return pipeline.ErrDisposed
	}
	c.teardownLocked()
	c.setStateLocked(pipeline.StateIdle)
	c.unlockAndFlush()
	return nil
}

// Dispose releases every resource. It is safe to call more than once and
// in any state.
func (c *Controller) Dispose() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	c.stopLoopLocked()
	c.mu.Unlock()

	// waits for an executing seek, which sees disposed and backs off
	c.seeker.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.pending = nil

	var errs []error
	if err := c.sched.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audio device: %w", err))
	}
	if err := c.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close presentation sink: %w", err))
	}
	c.log.Debug("Disposed")
	return errors.Join(errs...)
}

// State returns the current state.
func (c *Controller) State() pipeline.PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentTime returns the timestamp of the last presented picture, or the
// audio clock for audio-only sources.
func (c *Controller) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Duration returns the current, possibly estimated, duration.
func (c *Controller) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.Duration
}

// Info returns the media information of the loaded source.
func (c *Controller) Info() pipeline.MediaInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Err returns the error that moved the controller into the Error state.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Stats returns queue occupancy and decode counters.
func (c *Controller) Stats() pipeline.BufferStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := pipeline.BufferStats{
		VideoQueued:    c.video.Len(),
		VideoHighWater: c.video.HighWater(),
		AudioQueued:    c.audio.Len(),
		AudioHighWater: c.audio.HighWater(),
		LateFrames:     c.late,
		Presented:      c.presented,
	}
	if c.bridge != nil {
		st.InFlight = c.bridge.InFlight()
		st.Dropped = c.bridge.Dropped()
	}
	return st
}

// Session describes the loaded source for reporting.
type Session struct {
	Strategy            string
	Seeks               int
	DurationCorrections int
}

// Session returns counters about the current source.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Session{Strategy: c.strategy, Seeks: c.seeks, DurationCorrections: c.corrected}
}

func (c *Controller) usableLocked() error {
	if c.disposed {
		return pipeline.ErrDisposed
	}
	return nil
}

func (c *Controller) setStateLocked(s pipeline.PlayerState) {
	if c.state == s {
		return
	}
	old := c.state
	c.state = s
	c.log.Debug("State %s -> %s", old, s)
	c.emitLocked(pipeline.Event{Kind: pipeline.EventStateChange, OldState: old, NewState: s})
}

func (c *Controller) setCurrentLocked(t time.Duration) {
	if t == c.current {
		return
	}
	c.current = t
	c.seeker.SetCurrentTime(t)
	c.emitLocked(pipeline.Event{Kind: pipeline.EventTimeUpdate, CurrentTime: t, Duration: c.info.Duration})
}

func (c *Controller) emitLocked(ev pipeline.Event) {
	if c.disposed {
		return
	}
	c.pending = append(c.pending, ev)
}

// unlockAndFlush releases mu and then publishes the collected events.
func (c *Controller) unlockAndFlush() {
	evs := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ev := range evs {
		c.bus.Publish(ev)
	}
}

// failLocked moves to Error and emits a single error event.
func (c *Controller) failLocked(err error) {
	c.stopLoopLocked()
	c.sched.Pause()
	c.lastErr = err
	c.log.Error("Playback failed: %v", err)
	c.setStateLocked(pipeline.StateError)
	c.emitLocked(pipeline.Event{Kind: pipeline.EventError, Err: err})
}

// teardownLocked drops the loaded source. State is left to the caller.
func (c *Controller) teardownLocked() {
	c.stopLoopLocked()
	c.loadSeq++
	if c.bridge != nil {
		if err := c.bridge.Close(); err != nil {
			c.log.Warn("Closing decoder: %v", err)
		}
		c.bridge = nil
	}
	c.video.Clear()
	c.audio.Clear()
	if c.dmx != nil {
		_ = c.dmx.Close()
		c.dmx = nil
	}
	c.sched.ResetSchedule()
	c.sched.Pause()
	c.info = pipeline.MediaInfo{}
	c.strategy = ""
	c.current = 0
	c.ended, c.exhausted, c.starved = false, false, false
	c.afterSeek = pipeline.StateIdle
	c.lastErr = nil
	c.presented, c.late, c.seeks, c.corrected = 0, 0, 0, 0
	c.seeker.SetCurrentTime(0)
	c.seeker.SetDuration(0)
}
