// Package pipeline holds the data model shared by the playback components:
// tracks, samples, decoded units, player states, events and errors.
package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerFormat identifies the container of a source.
type ContainerFormat string

const (
	FormatUnknown  ContainerFormat = "unknown"
	FormatMP4      ContainerFormat = "mp4"
	FormatWebM     ContainerFormat = "webm"
	FormatMatroska ContainerFormat = "matroska"
)

// TrackKind distinguishes video from audio tracks.
type TrackKind int

const (
	KindVideo TrackKind = iota
	KindAudio
)

// String returns the string representation of the track kind.
func (k TrackKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Track describes one elementary stream of a source.
// A Track is immutable once it has been reported in MediaInfo.
type Track struct {
	ID       uint32
	Kind     TrackKind
	Codec    string // Normalized codec name (h264, h265, av1, vp8, vp9, aac, mp3, opus, vorbis, flac)
	CodecTag string // Container-native identifier (avc1, V_VP9, ...)

	// Video
	Width  int
	Height int

	// Audio
	SampleRate int
	Channels   int

	// Config holds codec-specific configuration needed before the first
	// sample is decodable (avcC/hvcC record, AudioSpecificConfig, CodecPrivate).
	Config []byte

	Timescale uint32
	Duration  time.Duration
}

// String returns a short human readable description.
func (t Track) String() string {
	if t.Kind == KindVideo {
		return fmt.Sprintf("#%d video %s %dx%d", t.ID, t.Codec, t.Width, t.Height)
	}
	return fmt.Sprintf("#%d audio %s %dHz %dch", t.ID, t.Codec, t.SampleRate, t.Channels)
}

// MediaInfo is the metadata reported by a demuxer after opening a source.
type MediaInfo struct {
	Format            ContainerFormat
	Duration          time.Duration
	DurationEstimated bool   // Duration derived from sample count until authoritative data arrives
	TimeBase          uint32 // Ticks per second of the container timeline
	Fragmented        bool
	Tracks            []Track
}

// Track returns the track with the given id.
func (m MediaInfo) Track(id uint32) (Track, bool) {
	for _, t := range m.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

// HasVideo reports whether at least one video track is present.
func (m MediaInfo) HasVideo() bool {
	for _, t := range m.Tracks {
		if t.Kind == KindVideo {
			return true
		}
	}
	return false
}

// EncodedSample is one compressed access unit taken from the container.
// It is consumed exactly once by the decode bridge.
type EncodedSample struct {
	TrackID  uint32
	Kind     TrackKind
	Data     []byte
	PTS      time.Duration
	DTS      time.Duration
	Duration time.Duration
	Keyframe bool
}

// =============================================================================
// Decoded Types
// =============================================================================

// releaser hands a buffer back to its owner exactly once.
type releaser struct {
	once sync.Once
	fn   func()
}

func (r *releaser) release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if r.fn != nil {
			r.fn()
		}
	})
}

// Picture is a decoded video frame in RGBA layout.
type Picture struct {
	Pix       []byte
	Width     int
	Height    int
	Stride    int
	Timestamp time.Duration
	Keyframe  bool

	rel *releaser
}

// NewPicture creates a Picture whose buffer is returned through release.
// release may be nil for buffers owned by the garbage collector.
func NewPicture(pix []byte, width, height int, ts time.Duration, keyframe bool, release func()) *Picture {
	return &Picture{
		Pix:       pix,
		Width:     width,
		Height:    height,
		Stride:    width * 4,
		Timestamp: ts,
		Keyframe:  keyframe,
		rel:       &releaser{fn: release},
	}
}

// Release returns the pixel buffer to its owner. Subsequent calls do nothing.
func (p *Picture) Release() {
	if p == nil {
		return
	}
	p.rel.release()
}

// AudioBuffer is decoded PCM audio, interleaved float32 samples.
type AudioBuffer struct {
	Samples    []float32
	Timestamp  time.Duration
	Duration   time.Duration
	SampleRate int
	Channels   int

	rel *releaser
}

// NewAudioBuffer creates an AudioBuffer. Duration is derived from the sample count.
func NewAudioBuffer(samples []float32, ts time.Duration, rate, channels int, release func()) *AudioBuffer {
	var dur time.Duration
	if rate > 0 && channels > 0 {
		frames := len(samples) / channels
		dur = time.Duration(frames) * time.Second / time.Duration(rate)
	}
	return &AudioBuffer{
		Samples:    samples,
		Timestamp:  ts,
		Duration:   dur,
		SampleRate: rate,
		Channels:   channels,
		rel:        &releaser{fn: release},
	}
}

// End returns the media time at which the buffer finishes.
func (a *AudioBuffer) End() time.Duration {
	return a.Timestamp + a.Duration
}

// Release returns the sample buffer to its owner. Subsequent calls do nothing.
func (a *AudioBuffer) Release() {
	if a == nil {
		return
	}
	a.rel.release()
}

// DecodedUnit is either a Picture or an AudioBuffer.
type DecodedUnit struct {
	Picture *Picture
	Audio   *AudioBuffer
}

// Release releases whichever buffer the unit carries.
func (u DecodedUnit) Release() {
	u.Picture.Release()
	u.Audio.Release()
}

// Timestamp returns the presentation timestamp of the unit.
func (u DecodedUnit) Timestamp() time.Duration {
	if u.Picture != nil {
		return u.Picture.Timestamp
	}
	if u.Audio != nil {
		return u.Audio.Timestamp
	}
	return 0
}

// DecoderOptions controls how decode sessions are opened.
type DecoderOptions struct {
	HardwareAcceleration bool
	Threads              int // 0 lets the backend decide
}

// DefaultDecoderOptions returns DecoderOptions with default values.
func DefaultDecoderOptions() DecoderOptions {
	return DecoderOptions{
		HardwareAcceleration: true,
		Threads:              0,
	}
}

// QueueConfig holds the high-water marks of the decoded-unit queues.
type QueueConfig struct {
	VideoHighWater int // default: 30
	AudioHighWater int // default: 50
}

// DefaultQueueConfig returns QueueConfig with default values.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		VideoHighWater: 30,
		AudioHighWater: 50,
	}
}

// =============================================================================
// Playback Types
// =============================================================================

// PlayerState is the state of a playback controller.
type PlayerState int

const (
	StateIdle PlayerState = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateSeeking
	StateBuffering
	StateError
)

// String returns the string representation of the state.
func (s PlayerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateSeeking:
		return "seeking"
	case StateBuffering:
		return "buffering"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Running reports whether the tick loop should be active in this state.
func (s PlayerState) Running() bool {
	return s == StatePlaying || s == StateBuffering
}

// SeekRequest is a clamped seek target waiting for execution.
type SeekRequest struct {
	Target    time.Duration
	Immediate bool
}

// Command is a playback command issued by an interactive host.
type Command string

const (
	CommandTogglePause     Command = "toggle-pause"
	CommandSeekBack        Command = "seek-back"
	CommandSeekForward     Command = "seek-forward"
	CommandSeekBackLong    Command = "seek-back-long"
	CommandSeekForwardLong Command = "seek-forward-long"
	CommandVolumeUp        Command = "volume-up"
	CommandVolumeDown      Command = "volume-down"
	CommandToggleMute      Command = "toggle-mute"
	CommandToggleLoop      Command = "toggle-loop"
)

// BufferStats reports queue occupancy and decode counters.
type BufferStats struct {
	VideoQueued    int
	VideoHighWater int
	AudioQueued    int
	AudioHighWater int
	InFlight       int
	Dropped        int // samples dropped after a decode failure
	LateFrames     int // pictures skipped because the clock passed them
	Presented      int
}

// =============================================================================
// Events
// =============================================================================

// EventKind identifies the kind of a playback event.
type EventKind string

const (
	EventStateChange    EventKind = "statechange"
	EventTimeUpdate     EventKind = "timeupdate"
	EventDurationChange EventKind = "durationchange"
	EventVolumeChange   EventKind = "volumechange"
	EventError          EventKind = "error"
)

// Event is a notification emitted by the playback controller.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	OldState PlayerState
	NewState PlayerState

	CurrentTime time.Duration
	Duration    time.Duration

	Volume float64
	Muted  bool

	Err error
}
