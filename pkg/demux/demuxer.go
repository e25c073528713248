// Package demux reads MP4 (progressive and fragmented) and Matroska/WebM
// containers as their bytes arrive and hands out the encoded samples of the
// selected tracks in decode order.
package demux

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// container is implemented by the per-format parsers. parse always receives
// the whole buffer received so far; the buffer only grows between calls.
type container interface {
	parse(buf []byte) error
	ready() bool
	tracks() []*trackIndex
	timeBase() uint32
	isFragmented() bool
	sawTrailer() bool
	declaredDuration() time.Duration
}

// Demuxer is the read side of a single source. It is not safe for
// concurrent use; the playback controller serializes access.
type Demuxer struct {
	log    ports.Logger
	format pipeline.ContainerFormat
	c      container

	buf    []byte
	final  bool
	closed bool

	selected map[pipeline.TrackKind]*trackIndex
	cursor   map[uint32]int
	info     pipeline.MediaInfo
}

// New creates a Demuxer.
func New(log ports.Logger) *Demuxer {
	log = logger.OrNoop(log)
	return &Demuxer{
		log:      log,
		selected: make(map[pipeline.TrackKind]*trackIndex),
		cursor:   make(map[uint32]int),
	}
}

// HeaderReady reports whether data holds enough of a source for Open to succeed.
func HeaderReady(data []byte) (bool, error) {
	format, err := DetectFormat(data)
	if err != nil {
		if errors.Is(err, pipeline.ErrTooShort) {
			return false, nil
		}
		return false, pipeline.NewFormatError("detect", err)
	}
	c := newContainer(format, logger.NewNoop())
	if err := c.parse(data); err != nil {
		return false, pipeline.NewFormatError("parse", err)
	}
	return c.ready(), nil
}

func newContainer(format pipeline.ContainerFormat, log ports.Logger) container {
	if format == pipeline.FormatMP4 {
		return newMP4Container(log)
	}
	return newWebMContainer(log)
}

// Open parses the header of a source. The Demuxer takes ownership of data.
// When the header is not complete yet the returned error wraps
// pipeline.ErrIncomplete and Open may be retried with a longer prefix.
func (d *Demuxer) Open(data []byte) (pipeline.MediaInfo, error) {
	if d.closed {
		return pipeline.MediaInfo{}, pipeline.ErrDisposed
	}
	if d.c != nil {
		return pipeline.MediaInfo{}, pipeline.NewFormatError("open", errors.New("demuxer already open"))
	}

	format, err := DetectFormat(data)
	if err != nil {
		return pipeline.MediaInfo{}, pipeline.NewFormatError("detect", err)
	}

	c := newContainer(format, d.log)
	if err := c.parse(data); err != nil {
		return pipeline.MediaInfo{}, pipeline.NewFormatError("parse", err)
	}
	if !c.ready() {
		return pipeline.MediaInfo{}, fmt.Errorf("open %s: %w", format, pipeline.ErrIncomplete)
	}

	d.format = format
	d.c = c
	d.buf = data
	d.selectDefaults()
	d.refreshInfo()

	d.log.Debug("Opened %s source: %d tracks, duration %v", format, len(d.info.Tracks), d.info.Duration)
	return d.info, nil
}

// Append feeds more bytes of a progressively received source. changed
// reports whether the duration or its estimated flag moved.
func (d *Demuxer) Append(data []byte) (pipeline.MediaInfo, bool, error) {
	if err := d.usable(); err != nil {
		return pipeline.MediaInfo{}, false, err
	}
	if d.final {
		return d.info, false, pipeline.NewFormatError("append", errors.New("source already finished"))
	}
	d.buf = append(d.buf, data...)
	if err := d.c.parse(d.buf); err != nil {
		return d.info, false, pipeline.NewFormatError("parse", err)
	}
	changed := d.refreshInfo()
	return d.info, changed, nil
}

// Finish marks the end of input. The duration becomes authoritative.
func (d *Demuxer) Finish() (pipeline.MediaInfo, bool, error) {
	if err := d.usable(); err != nil {
		return pipeline.MediaInfo{}, false, err
	}
	d.final = true
	changed := d.refreshInfo()
	return d.info, changed, nil
}

// Info returns the current media information.
func (d *Demuxer) Info() pipeline.MediaInfo {
	return d.info
}

// Format returns the detected container format.
func (d *Demuxer) Format() pipeline.ContainerFormat {
	return d.format
}

// Complete reports whether every byte of the source has been received.
func (d *Demuxer) Complete() bool {
	return d.final || (d.c != nil && d.c.sawTrailer())
}

// Tracks returns every reported track.
func (d *Demuxer) Tracks() []pipeline.Track {
	return d.info.Tracks
}

// Selected returns the active tracks, video first.
func (d *Demuxer) Selected() []pipeline.Track {
	var out []pipeline.Track
	for _, kind := range []pipeline.TrackKind{pipeline.KindVideo, pipeline.KindAudio} {
		if ti, ok := d.selected[kind]; ok {
			out = append(out, ti.track)
		}
	}
	return out
}

// SelectTrack makes id the active track of its kind. Extraction of that
// track restarts from its first sample; callers reposition with Seek.
func (d *Demuxer) SelectTrack(id uint32) error {
	if err := d.usable(); err != nil {
		return err
	}
	for _, ti := range d.c.tracks() {
		if ti.track.ID == id {
			d.selected[ti.track.Kind] = ti
			d.cursor[id] = 0
			return nil
		}
	}
	return fmt.Errorf("select track %d: %w", id, pipeline.ErrNoTrack)
}

// ReadSample returns the next sample of the selected tracks in decode order.
// It returns io.EOF once the source is complete and exhausted, and an error
// wrapping pipeline.ErrIncomplete while waiting for more bytes.
func (d *Demuxer) ReadSample() (pipeline.EncodedSample, error) {
	if err := d.usable(); err != nil {
		return pipeline.EncodedSample{}, err
	}

	var pick *trackIndex
	for _, kind := range []pipeline.TrackKind{pipeline.KindVideo, pipeline.KindAudio} {
		ti, ok := d.selected[kind]
		if !ok || d.cursor[ti.track.ID] >= len(ti.samples) {
			continue
		}
		if pick == nil || ti.samples[d.cursor[ti.track.ID]].dts < pick.samples[d.cursor[pick.track.ID]].dts {
			pick = ti
		}
	}
	if pick == nil {
		if d.Complete() {
			return pipeline.EncodedSample{}, io.EOF
		}
		return pipeline.EncodedSample{}, pipeline.ErrIncomplete
	}

	pos := d.cursor[pick.track.ID]
	s := pick.samples[pos]
	data := s.data
	if s.offset >= 0 {
		end := s.offset + int64(s.size)
		if end > int64(len(d.buf)) {
			if d.final {
				return pipeline.EncodedSample{}, pipeline.NewFormatError("read",
					fmt.Errorf("sample %d of track %d beyond end of data", pos+1, pick.track.ID))
			}
			return pipeline.EncodedSample{}, pipeline.ErrIncomplete
		}
		data = d.buf[s.offset:end]
	}
	d.cursor[pick.track.ID] = pos + 1

	return pipeline.EncodedSample{
		TrackID:  pick.track.ID,
		Kind:     pick.track.Kind,
		Data:     data,
		PTS:      s.pts,
		DTS:      s.dts,
		Duration: s.dur,
		Keyframe: s.key,
	}, nil
}

// Seek repositions extraction to the last keyframe at or before t and
// returns the presentation time actually reached.
func (d *Demuxer) Seek(t time.Duration) (time.Duration, error) {
	if err := d.usable(); err != nil {
		return 0, err
	}
	if t < 0 {
		t = 0
	}

	lead, ok := d.selected[pipeline.KindVideo]
	if !ok || len(lead.samples) == 0 {
		lead, ok = d.selected[pipeline.KindAudio]
	}
	if !ok || len(lead.samples) == 0 {
		for id := range d.cursor {
			d.cursor[id] = 0
		}
		return 0, nil
	}

	var idx int
	if lead.track.Kind == pipeline.KindVideo {
		idx = lead.keyframeAtOrBefore(t)
		if idx < 0 {
			idx = 0
		}
	} else {
		idx = sort.Search(len(lead.samples), func(i int) bool {
			return lead.samples[i].pts > t
		}) - 1
		if idx < 0 {
			idx = 0
		}
	}
	reached := lead.samples[idx].pts
	d.cursor[lead.track.ID] = idx

	for _, ti := range d.selected {
		if ti != lead {
			d.cursor[ti.track.ID] = ti.firstAtOrAfter(reached)
		}
	}

	d.log.Debug("Seek to %v reached %v", t, reached)
	return reached, nil
}

// Close releases the source buffer. It is safe to call more than once.
func (d *Demuxer) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.buf = nil
	d.c = nil
	d.selected = make(map[pipeline.TrackKind]*trackIndex)
	return nil
}

func (d *Demuxer) usable() error {
	if d.closed {
		return pipeline.ErrDisposed
	}
	if d.c == nil {
		return fmt.Errorf("demuxer not open: %w", pipeline.ErrInvalidState)
	}
	return nil
}

func (d *Demuxer) selectDefaults() {
	for _, ti := range d.c.tracks() {
		if _, ok := d.selected[ti.track.Kind]; !ok {
			d.selected[ti.track.Kind] = ti
		}
	}
}

// refreshInfo rebuilds MediaInfo and reports whether the duration changed.
func (d *Demuxer) refreshInfo() bool {
	prevDur, prevEst := d.info.Duration, d.info.DurationEstimated

	tracks := d.c.tracks()
	info := pipeline.MediaInfo{
		Format:     d.format,
		TimeBase:   d.c.timeBase(),
		Fragmented: d.c.isFragmented(),
		Tracks:     make([]pipeline.Track, 0, len(tracks)),
	}
	for _, ti := range tracks {
		info.Tracks = append(info.Tracks, ti.track)
	}

	switch {
	case d.c.declaredDuration() > 0:
		info.Duration = d.c.declaredDuration()
	case d.Complete() || (d.format == pipeline.FormatMP4 && !d.c.isFragmented()):
		info.Duration = timelineEnd(tracks)
	default:
		info.Duration = estimateDuration(tracks)
		info.DurationEstimated = true
	}

	d.info = info
	return info.Duration != prevDur || info.DurationEstimated != prevEst
}
