package demux

import (
	"sort"
	"time"

	"github.com/user/playcore/pkg/pipeline"
)

// sampleRef locates one encoded sample. Samples of progressive MP4 files
// point into the source buffer; everything else carries its payload.
type sampleRef struct {
	offset int64 // -1 when data is set
	size   int
	data   []byte

	dts time.Duration
	pts time.Duration
	dur time.Duration
	key bool
}

// trackIndex is the sample table of a single track in decode order.
type trackIndex struct {
	track   pipeline.Track
	samples []sampleRef
}

func (ti *trackIndex) end() time.Duration {
	var end time.Duration
	for i := len(ti.samples) - 1; i >= 0 && i >= len(ti.samples)-8; i-- {
		// the last few samples cover reordered presentation times
		if e := ti.samples[i].pts + ti.samples[i].dur; e > end {
			end = e
		}
	}
	return end
}

// keyframeAtOrBefore returns the index of the last keyframe with pts <= t,
// or the first keyframe when none precedes t. It returns -1 for an empty track.
func (ti *trackIndex) keyframeAtOrBefore(t time.Duration) int {
	best, first := -1, -1
	for i, s := range ti.samples {
		if !s.key {
			continue
		}
		if first < 0 {
			first = i
		}
		if s.pts <= t {
			best = i
		} else if s.dts > t {
			break
		}
	}
	if best < 0 {
		return first
	}
	return best
}

// firstAtOrAfter returns the index of the first sample decoded at or after t.
func (ti *trackIndex) firstAtOrAfter(t time.Duration) int {
	return sort.Search(len(ti.samples), func(i int) bool {
		return ti.samples[i].dts >= t
	})
}

// ticks converts a timestamp expressed in timescale units to a Duration
// without overflowing for long timelines.
func ticks(v int64, timescale uint32) time.Duration {
	if timescale == 0 {
		return 0
	}
	ts := int64(timescale)
	sec := v / ts
	rem := v % ts
	return time.Duration(sec)*time.Second + time.Duration(rem)*time.Second/time.Duration(ts)
}

// estimateDuration returns sample count times the inferred frame period of
// the reference track (first video track with samples, else the first track).
func estimateDuration(tracks []*trackIndex) time.Duration {
	var ref *trackIndex
	for _, ti := range tracks {
		if len(ti.samples) == 0 {
			continue
		}
		if ref == nil || (ti.track.Kind == pipeline.KindVideo && ref.track.Kind != pipeline.KindVideo) {
			ref = ti
		}
	}
	if ref == nil {
		return 0
	}

	period := inferPeriod(ref.samples)
	return period * time.Duration(len(ref.samples))
}

func inferPeriod(samples []sampleRef) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if samples[0].dur > 0 {
		return samples[0].dur
	}
	if len(samples) > 1 {
		span := samples[len(samples)-1].dts - samples[0].dts
		return span / time.Duration(len(samples)-1)
	}
	return 0
}

// timelineEnd returns the largest presentation end over all tracks.
func timelineEnd(tracks []*trackIndex) time.Duration {
	var end time.Duration
	for _, ti := range tracks {
		if e := ti.end(); e > end {
			end = e
		}
	}
	return end
}
