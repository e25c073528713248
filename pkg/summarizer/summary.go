// Package summarizer provides summary generation for playback sessions.
package summarizer

import (
	"time"

	"github.com/user/playcore/pkg/pipeline"
)

// Summary contains all data collected during a playback session.
type Summary struct {
	// Metadata
	GeneratedAt time.Time

	Source   SourceInfo
	Media    MediaInfo
	Playback PlaybackInfo
	Decode   DecodeInfo
}

// SourceInfo describes where the media came from.
type SourceInfo struct {
	Location    string
	Bytes       int64
	Progressive bool // bytes were fed while playing
}

// MediaInfo describes the parsed container.
type MediaInfo struct {
	Format            pipeline.ContainerFormat
	Duration          time.Duration
	DurationEstimated bool
	Tracks            []pipeline.Track
}

// PlaybackInfo contains counters of the playback loop.
type PlaybackInfo struct {
	FinalState          pipeline.PlayerState
	Position            time.Duration
	Presented           int
	LateFrames          int
	Seeks               int
	DurationCorrections int
	WallTime            time.Duration
}

// DecodeInfo describes how the media was decoded.
type DecodeInfo struct {
	Strategy string
	Backends map[string]string // codec -> backend
	Dropped  int
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSource sets source information.
func (b *Builder) WithSource(location string, size int64, progressive bool) *Builder {
	b.summary.Source = SourceInfo{
		Location:    location,
		Bytes:       size,
		Progressive: progressive,
	}
	return b
}

// WithMedia copies the fields of a parsed MediaInfo.
func (b *Builder) WithMedia(info pipeline.MediaInfo) *Builder {
	b.summary.Media = MediaInfo{
		Format:            info.Format,
		Duration:          info.Duration,
		DurationEstimated: info.DurationEstimated,
		Tracks:            info.Tracks,
	}
	return b
}

// WithPlayback sets playback counters.
func (b *Builder) WithPlayback(playback PlaybackInfo) *Builder {
	b.summary.Playback = playback
	return b
}

// WithDecode sets decode information.
func (b *Builder) WithDecode(decode DecodeInfo) *Builder {
	b.summary.Decode = decode
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
