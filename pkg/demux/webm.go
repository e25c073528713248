package demux

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/at-wat/ebml-go"

	"github.com/user/playcore/pkg/adapters/codecdetect"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// Matroska element layouts read by ebml-go. Each is decoded from the bytes
// of a single complete element; children not listed are skipped.
type mkvHeader struct {
	EBMLDocType string
}

type mkvHead struct {
	Header mkvHeader `ebml:"EBML"`
	Info   mkvInfo
	Tracks mkvTracks
}

type mkvInfo struct {
	TimecodeScale uint64
	Duration      float64
}

type mkvTracks struct {
	TrackEntry []mkvTrackEntry
}

type mkvTrackEntry struct {
	TrackNumber     uint64
	TrackType       uint64
	CodecID         string
	CodecPrivate    []byte
	DefaultDuration uint64
	Video           mkvVideo
	Audio           mkvAudio
}

type mkvVideo struct {
	PixelWidth  uint64
	PixelHeight uint64
}

type mkvAudio struct {
	SamplingFrequency float64
	Channels          uint64
}

type mkvCluster struct {
	Timecode    uint64
	SimpleBlock []ebml.Block
	BlockGroup  []mkvBlockGroup
}

type mkvBlockGroup struct {
	Block          ebml.Block
	BlockDuration  uint64
	ReferenceBlock []int64
}

const (
	mkvTrackVideo = 1
	mkvTrackAudio = 2

	defaultTimecodeScale = 1000000 // 1ms

	sizeUnknown = -1
)

var (
	idEBML        = elementID(ebml.ElementEBML)
	idSegment     = elementID(ebml.ElementSegment)
	idInfo        = elementID(ebml.ElementInfo)
	idTracks      = elementID(ebml.ElementTracks)
	idCluster     = elementID(ebml.ElementCluster)
	idTimecode    = elementID(ebml.ElementTimecode)
	idSimpleBlock = elementID(ebml.ElementSimpleBlock)
	idBlockGroup  = elementID(ebml.ElementBlockGroup)

	// segmentLevel lists the elements that close a Cluster of unknown size.
	segmentLevel = map[uint64]bool{
		idEBML:                             true,
		idSegment:                          true,
		idInfo:                             true,
		idTracks:                           true,
		idCluster:                          true,
		elementID(ebml.ElementSeekHead):    true,
		elementID(ebml.ElementCues):        true,
		elementID(ebml.ElementTags):        true,
		elementID(ebml.ElementChapters):    true,
		elementID(ebml.ElementAttachments): true,
	}
)

func elementID(t ebml.ElementType) uint64 {
	var id uint64
	for _, b := range t.Bytes() {
		id = id<<8 | uint64(b)
	}
	return id
}

// elementHeader is the ID and data size that open every EBML element.
type elementHeader struct {
	id     uint64
	hdrLen int64
	size   int64 // sizeUnknown for live-written Segments and Clusters
}

// readElementHeader decodes the element header at the start of b. ok is
// false while b holds only part of it.
func readElementHeader(b []byte) (h elementHeader, ok bool, err error) {
	id, n, err := readVarint(b, 4, true)
	if err != nil || n == 0 {
		return h, false, err
	}
	size, m, err := readVarint(b[n:], 8, false)
	if err != nil || m == 0 {
		return h, false, err
	}
	h = elementHeader{id: id, hdrLen: int64(n + m), size: int64(size)}
	if size == 1<<(7*m)-1 {
		h.size = sizeUnknown
	}
	return h, true, nil
}

// readVarint reads an EBML variable-length integer. Element IDs keep their
// length marker. n is 0 when b is too short.
func readVarint(b []byte, maxLen int, keepMarker bool) (v uint64, n int, err error) {
	if len(b) == 0 {
		return 0, 0, nil
	}
	n = bits.LeadingZeros8(b[0]) + 1
	if n > maxLen {
		return 0, 0, fmt.Errorf("invalid variable-length integer 0x%02x", b[0])
	}
	if len(b) < n {
		return 0, 0, nil
	}
	v = uint64(b[0])
	if !keepMarker {
		v &= 0xFF >> n
	}
	for _, c := range b[1:n] {
		v = v<<8 | uint64(c)
	}
	return v, n, nil
}

// webmContainer walks the element tree of a Matroska/WebM file as its bytes
// arrive. Every complete element is decoded once; blocks are appended to the
// sample tables in file order, which Matroska defines as decode order.
type webmContainer struct {
	log ports.Logger

	pos       int64 // offset of the next unparsed element
	inSegment bool
	segEnd    int64 // sizeUnknown when the Segment is open-ended
	cluster   *openCluster

	hdrReady  bool
	scale     uint64
	headerDur time.Duration

	index   []*trackIndex
	byNum   map[uint64]*trackIndex
	defDur  map[uint64]time.Duration
	lastDTS map[uint64]time.Duration
	guessed map[uint64]bool // duration of the track's last sample copied from its predecessor
}

type openCluster struct {
	end      int64 // sizeUnknown when closed by the next segment-level element
	timecode uint64
}

func newWebMContainer(log ports.Logger) *webmContainer {
	return &webmContainer{
		log:     log,
		scale:   defaultTimecodeScale,
		byNum:   make(map[uint64]*trackIndex),
		defDur:  make(map[uint64]time.Duration),
		lastDTS: make(map[uint64]time.Duration),
		guessed: make(map[uint64]bool),
	}
}

func (c *webmContainer) ready() bool { return c.hdrReady }
func (c *webmContainer) tracks() []*trackIndex { return c.index }
func (c *webmContainer) isFragmented() bool { return false }
func (c *webmContainer) sawTrailer() bool { return false }
func (c *webmContainer) declaredDuration() time.Duration { return c.headerDur }

// timeBase reports ticks per second of the Matroska timecode.
func (c *webmContainer) timeBase() uint32 {
	return uint32(uint64(time.Second) / c.scale)
}

// parse consumes every complete element after c.pos.
func (c *webmContainer) parse(buf []byte) error {
	for {
		if c.cluster != nil && c.cluster.end != sizeUnknown && c.pos >= c.cluster.end {
			c.cluster = nil
		}
		if c.inSegment && c.segEnd != sizeUnknown && c.pos >= c.segEnd {
			c.inSegment = false
		}

		h, ok, err := readElementHeader(buf[c.pos:])
		if err != nil {
			return fmt.Errorf("element at %d: %w", c.pos, err)
		}
		if !ok {
			return nil
		}

		var progress bool
		switch {
		case c.cluster != nil:
			progress, err = c.clusterChild(buf, h)
		case c.inSegment:
			progress, err = c.segmentChild(buf, h)
		default:
			progress, err = c.topLevel(buf, h)
		}
		if err != nil || !progress {
			return err
		}
	}
}

// element returns the complete element at c.pos, or false while it is
// still arriving.
func (c *webmContainer) element(buf []byte, h elementHeader) ([]byte, bool, error) {
	if h.size == sizeUnknown {
		return nil, false, fmt.Errorf("element 0x%x at %d has unknown size", h.id, c.pos)
	}
	end := c.pos + h.hdrLen + h.size
	if end > int64(len(buf)) {
		return nil, false, nil
	}
	return buf[c.pos:end], true, nil
}

func (c *webmContainer) topLevel(buf []byte, h elementHeader) (bool, error) {
	if h.id == idSegment {
		c.pos += h.hdrLen
		c.inSegment = true
		c.segEnd = sizeUnknown
		if h.size != sizeUnknown {
			c.segEnd = c.pos + h.size
		}
		return true, nil
	}

	elem, ok, err := c.element(buf, h)
	if !ok || err != nil {
		return false, err
	}
	if h.id == idEBML {
		var head mkvHead
		if err := ebml.Unmarshal(bytes.NewReader(elem), &head); err != nil {
			return false, fmt.Errorf("decode EBML header: %w", err)
		}
		switch doc := head.Header.EBMLDocType; doc {
		case "", "webm", "matroska":
		default:
			return false, fmt.Errorf("unsupported document type %q", doc)
		}
	}
	c.pos += int64(len(elem))
	return true, nil
}

func (c *webmContainer) segmentChild(buf []byte, h elementHeader) (bool, error) {
	if h.id == idCluster {
		if !c.hdrReady {
			return false, errors.New("cluster before tracks element")
		}
		c.pos += h.hdrLen
		c.cluster = &openCluster{end: sizeUnknown}
		if h.size != sizeUnknown {
			c.cluster.end = c.pos + h.size
		}
		return true, nil
	}

	elem, ok, err := c.element(buf, h)
	if !ok || err != nil {
		return false, err
	}
	switch h.id {
	case idInfo:
		var head mkvHead
		if err := ebml.Unmarshal(bytes.NewReader(elem), &head); err != nil {
			return false, fmt.Errorf("decode info: %w", err)
		}
		c.applyInfo(head.Info)
	case idTracks:
		var head mkvHead
		if err := ebml.Unmarshal(bytes.NewReader(elem), &head); err != nil {
			return false, fmt.Errorf("decode tracks: %w", err)
		}
		if !c.hdrReady {
			if err := c.loadTracks(head.Tracks); err != nil {
				return false, err
			}
		}
	}
	c.pos += int64(len(elem))
	return true, nil
}

func (c *webmContainer) clusterChild(buf []byte, h elementHeader) (bool, error) {
	if segmentLevel[h.id] {
		c.cluster = nil
		return true, nil
	}

	elem, ok, err := c.element(buf, h)
	if !ok || err != nil {
		return false, err
	}
	switch h.id {
	case idTimecode, idSimpleBlock, idBlockGroup:
		var cl mkvCluster
		if err := ebml.Unmarshal(bytes.NewReader(elem), &cl); err != nil {
			return false, fmt.Errorf("decode cluster element at %d: %w", c.pos, err)
		}
		if h.id == idTimecode {
			c.cluster.timecode = cl.Timecode
		}
		for _, b := range cl.SimpleBlock {
			c.addBlock(b, b.Keyframe, 0)
		}
		for _, g := range cl.BlockGroup {
			c.addBlock(g.Block, len(g.ReferenceBlock) == 0, time.Duration(g.BlockDuration*c.scale))
		}
	}
	c.pos += int64(len(elem))
	return true, nil
}

func (c *webmContainer) applyInfo(info mkvInfo) {
	if info.TimecodeScale > 0 {
		c.scale = info.TimecodeScale
	}
	if info.Duration > 0 {
		c.headerDur = time.Duration(info.Duration * float64(c.scale))
	}
	for _, ti := range c.index {
		ti.track.Timescale = c.timeBase()
	}
}

func (c *webmContainer) loadTracks(tracks mkvTracks) error {
	for _, te := range tracks.TrackEntry {
		track, ok := describeTrackEntry(te, c.timeBase())
		if !ok {
			c.log.Debug("Omitting incomplete track %d", te.TrackNumber)
			continue
		}
		ti := &trackIndex{track: track}
		c.index = append(c.index, ti)
		c.byNum[te.TrackNumber] = ti
		c.defDur[te.TrackNumber] = time.Duration(te.DefaultDuration)
	}
	if len(c.index) == 0 {
		return errors.New("no playable tracks")
	}
	c.hdrReady = true
	return nil
}

func describeTrackEntry(te mkvTrackEntry, timescale uint32) (pipeline.Track, bool) {
	if te.TrackNumber == 0 || te.CodecID == "" {
		return pipeline.Track{}, false
	}
	track := pipeline.Track{
		ID:        uint32(te.TrackNumber),
		CodecTag:  te.CodecID,
		Codec:     string(codecdetect.FromMatroska(te.CodecID)),
		Config:    te.CodecPrivate,
		Timescale: timescale,
	}
	switch te.TrackType {
	case mkvTrackVideo:
		track.Kind = pipeline.KindVideo
		track.Width = int(te.Video.PixelWidth)
		track.Height = int(te.Video.PixelHeight)
	case mkvTrackAudio:
		track.Kind = pipeline.KindAudio
		track.SampleRate = int(te.Audio.SamplingFrequency)
		track.Channels = int(te.Audio.Channels)
	default:
		return pipeline.Track{}, false
	}
	return track, true
}

// addBlock appends the frames of one block to its track.
func (c *webmContainer) addBlock(b ebml.Block, key bool, dur time.Duration) {
	num := b.TrackNumber
	ti, ok := c.byNum[num]
	if !ok {
		return
	}
	if dur == 0 {
		dur = c.defDur[num]
	}
	ts := c.blockTime(c.cluster.timecode, b.Timecode)

	for i, frame := range b.Data {
		pts := ts + time.Duration(i)*dur
		c.settleLast(ti, num, pts)

		// Matroska stores presentation times only; keep decode order monotonic.
		dts := pts
		if prev, ok := c.lastDTS[num]; ok && dts < prev {
			dts = prev
		}
		c.lastDTS[num] = dts

		d, guessed := dur, false
		if d == 0 && len(ti.samples) > 0 {
			d, guessed = ti.samples[len(ti.samples)-1].dur, true
		}
		ti.samples = append(ti.samples, sampleRef{
			offset: -1,
			size:   len(frame),
			data:   frame,
			dts:    dts,
			pts:    pts,
			dur:    d,
			key:    key || ti.track.Kind == pipeline.KindAudio,
		})
		c.guessed[num] = guessed || d == 0
	}
}

// settleLast replaces a guessed duration of the track's last sample once the
// next presentation time is known.
func (c *webmContainer) settleLast(ti *trackIndex, num uint64, next time.Duration) {
	if !c.guessed[num] || len(ti.samples) == 0 {
		return
	}
	last := &ti.samples[len(ti.samples)-1]
	if next > last.pts {
		last.dur = next - last.pts
	}
	c.guessed[num] = false
}

func (c *webmContainer) blockTime(cluster uint64, rel int16) time.Duration {
	t := int64(cluster) + int64(rel)
	if t < 0 {
		t = 0
	}
	return time.Duration(uint64(t) * c.scale)
}
