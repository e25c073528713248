package demux

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/user/playcore/pkg/adapters/codecdetect"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// sample_is_non_sync_sample bit of the ISO-BMFF sample flags.
const nonSyncFlag = 0x00010000

var errSampleTable = errors.New("incomplete sample table")

// mp4Container parses ISO-BMFF top-level boxes as they become complete.
type mp4Container struct {
	log ports.Logger

	pos  int64 // offset of the next unparsed top-level box
	moov *mp4.MoovBox

	timescale  uint32
	headerDur  time.Duration // from mvhd or mehd, 0 when unknown
	fragmented bool
	sawMfra    bool

	trex        map[uint32]*mp4.TrexBox
	pendingMoof *mp4.MoofBox

	index []*trackIndex
	byID  map[uint32]*trackIndex
}

func newMP4Container(log ports.Logger) *mp4Container {
	return &mp4Container{
		log:  log,
		trex: make(map[uint32]*mp4.TrexBox),
		byID: make(map[uint32]*trackIndex),
	}
}

func (c *mp4Container) ready() bool { return c.moov != nil }
func (c *mp4Container) tracks() []*trackIndex { return c.index }
func (c *mp4Container) timeBase() uint32 { return c.timescale }
func (c *mp4Container) isFragmented() bool { return c.fragmented }
func (c *mp4Container) sawTrailer() bool { return c.sawMfra }
func (c *mp4Container) declaredDuration() time.Duration { return c.headerDur }

// parse consumes every complete top-level box after c.pos.
func (c *mp4Container) parse(buf []byte) error {
	for {
		rest := buf[c.pos:]
		if len(rest) < 8 {
			return nil
		}

		hdr, err := mp4.DecodeHeader(bytes.NewReader(rest))
		if err != nil {
			if len(rest) < 16 {
				return nil
			}
			return fmt.Errorf("box header at %d: %w", c.pos, err)
		}

		size := int64(hdr.Size)
		if size == 0 {
			// Box runs to the end of the file. Only mdat may do that and
			// progressive samples resolve against the buffer directly.
			if hdr.Name != "mdat" {
				return fmt.Errorf("box %q at %d has open size", hdr.Name, c.pos)
			}
			return nil
		}
		if size < int64(hdr.Hdrlen) {
			return fmt.Errorf("box %q at %d: size %d smaller than header", hdr.Name, c.pos, size)
		}
		if int64(len(rest)) < size {
			return nil
		}

		if err := c.handle(hdr.Name, rest[:size]); err != nil {
			return err
		}
		c.pos += size
	}
}

func (c *mp4Container) handle(name string, data []byte) error {
	switch name {
	case "moov":
		box, err := mp4.DecodeBox(uint64(c.pos), bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("decode moov: %w", err)
		}
		moov, ok := box.(*mp4.MoovBox)
		if !ok {
			return fmt.Errorf("unexpected box type for moov: %T", box)
		}
		return c.loadMoov(moov)

	case "moof":
		if c.moov == nil {
			return fmt.Errorf("moof at %d before moov", c.pos)
		}
		box, err := mp4.DecodeBox(uint64(c.pos), bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("decode moof: %w", err)
		}
		moof, ok := box.(*mp4.MoofBox)
		if !ok {
			return fmt.Errorf("unexpected box type for moof: %T", box)
		}
		c.pendingMoof = moof

	case "mdat":
		if c.pendingMoof == nil {
			return nil
		}
		box, err := mp4.DecodeBox(uint64(c.pos), bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("decode mdat: %w", err)
		}
		mdat, ok := box.(*mp4.MdatBox)
		if !ok {
			return fmt.Errorf("unexpected box type for mdat: %T", box)
		}
		moof := c.pendingMoof
		c.pendingMoof = nil
		return c.addFragment(moof, mdat)

	case "mfra":
		c.sawMfra = true
	}
	return nil
}

func (c *mp4Container) loadMoov(moov *mp4.MoovBox) error {
	if moov.Mvhd == nil {
		return errors.New("moov without mvhd")
	}
	c.moov = moov
	c.timescale = moov.Mvhd.Timescale
	c.fragmented = moov.Mvex != nil
	if moov.Mvhd.Duration > 0 && c.timescale > 0 {
		c.headerDur = ticks(int64(moov.Mvhd.Duration), c.timescale)
	}

	if moov.Mvex != nil {
		for _, trex := range moov.Mvex.Trexs {
			c.trex[trex.TrackID] = trex
		}
		if moov.Mvex.Mehd != nil && moov.Mvex.Mehd.FragmentDuration > 0 && c.timescale > 0 {
			c.headerDur = ticks(int64(moov.Mvex.Mehd.FragmentDuration), c.timescale)
		}
	}

	for _, trak := range moov.Traks {
		track, stbl, ok := describeTrak(trak)
		if !ok {
			c.log.Debug("Omitting incomplete track %d", trakID(trak))
			continue
		}
		ti := &trackIndex{track: track}
		if !c.fragmented {
			if err := indexProgressive(ti, stbl); err != nil {
				c.log.Debug("Omitting track %d: %v", track.ID, err)
				continue
			}
		}
		if _, ok := c.trex[track.ID]; !ok && c.fragmented {
			c.trex[track.ID] = &mp4.TrexBox{TrackID: track.ID}
		}
		c.index = append(c.index, ti)
		c.byID[track.ID] = ti
	}

	if len(c.index) == 0 {
		return errors.New("no playable tracks")
	}
	return nil
}

func (c *mp4Container) addFragment(moof *mp4.MoofBox, mdat *mp4.MdatBox) error {
	frag := &mp4.Fragment{Moof: moof, Mdat: mdat}
	for _, traf := range moof.Trafs {
		if traf.Tfhd == nil {
			return errors.New("traf without tfhd")
		}
		ti, ok := c.byID[traf.Tfhd.TrackID]
		if !ok {
			continue
		}
		if traf.Tfdt == nil {
			return fmt.Errorf("traf for track %d without tfdt", ti.track.ID)
		}

		f := frag
		if len(moof.Trafs) > 1 {
			// GetFullSamples reads the first traf only.
			f = &mp4.Fragment{Moof: &mp4.MoofBox{
				Mfhd:     moof.Mfhd,
				Traf:     traf,
				Trafs:    []*mp4.TrafBox{traf},
				StartPos: moof.StartPos,
			}, Mdat: mdat}
		}
		full, err := f.GetFullSamples(c.trex[ti.track.ID])
		if err != nil {
			return fmt.Errorf("fragment samples for track %d: %w", ti.track.ID, err)
		}
		ts := ti.track.Timescale
		for _, s := range full {
			dts := int64(s.DecodeTime)
			ti.samples = append(ti.samples, sampleRef{
				offset: -1,
				size:   len(s.Data),
				data:   s.Data,
				dts:    ticks(dts, ts),
				pts:    ticks(dts+int64(s.CompositionTimeOffset), ts),
				dur:    ticks(int64(s.Dur), ts),
				key:    s.Flags&nonSyncFlag == 0,
			})
		}
	}
	return nil
}

func trakID(trak *mp4.TrakBox) uint32 {
	if trak.Tkhd == nil {
		return 0
	}
	return trak.Tkhd.TrackID
}

// describeTrak builds a Track from a trak box. It reports false when the box
// tree lacks anything needed to decode the track.
func describeTrak(trak *mp4.TrakBox) (pipeline.Track, *mp4.StblBox, bool) {
	if trak.Tkhd == nil || trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Mdhd == nil {
		return pipeline.Track{}, nil, false
	}
	minf := trak.Mdia.Minf
	if minf == nil || minf.Stbl == nil || minf.Stbl.Stsd == nil || len(minf.Stbl.Stsd.Children) == 0 {
		return pipeline.Track{}, nil, false
	}

	track := pipeline.Track{
		ID:        trak.Tkhd.TrackID,
		Timescale: trak.Mdia.Mdhd.Timescale,
	}
	if track.Timescale == 0 {
		return pipeline.Track{}, nil, false
	}
	track.Duration = ticks(int64(trak.Mdia.Mdhd.Duration), track.Timescale)

	switch trak.Mdia.Hdlr.HandlerType {
	case "vide":
		track.Kind = pipeline.KindVideo
	case "soun":
		track.Kind = pipeline.KindAudio
	default:
		return pipeline.Track{}, nil, false
	}

	entry := minf.Stbl.Stsd.Children[0]
	track.CodecTag = entry.Type()
	track.Codec = string(codecdetect.FromSampleEntry(entry.Type()))

	switch e := entry.(type) {
	case *mp4.VisualSampleEntryBox:
		if track.Kind != pipeline.KindVideo {
			return pipeline.Track{}, nil, false
		}
		track.Width, track.Height = int(e.Width), int(e.Height)
		for _, child := range e.Children {
			switch child.Type() {
			case "avcC", "hvcC", "av1C", "vpcC":
				track.Config = boxPayload(child)
			}
		}
		if e.AvcC != nil && len(e.AvcC.SPSnalus) > 0 && (track.Width == 0 || track.Height == 0) {
			var sps h264.SPS
			if err := sps.Unmarshal(e.AvcC.SPSnalus[0]); err == nil {
				track.Width, track.Height = sps.Width(), sps.Height()
			}
		}
	case *mp4.AudioSampleEntryBox:
		if track.Kind != pipeline.KindAudio {
			return pipeline.Track{}, nil, false
		}
		track.SampleRate = int(e.SampleRate)
		track.Channels = int(e.ChannelCount)
		if e.Esds != nil {
			track.Config = e.Esds.DecConfigDescriptor.DecSpecificInfo.DecConfig
			var asc mpeg4audio.AudioSpecificConfig
			if err := asc.Unmarshal(track.Config); err == nil {
				track.SampleRate = asc.SampleRate
				track.Channels = asc.ChannelCount
			}
		}
	default:
		return pipeline.Track{}, nil, false
	}

	return track, minf.Stbl, true
}

// boxPayload returns the encoded body of a box without its 8-byte header.
func boxPayload(b mp4.Box) []byte {
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil || buf.Len() < 8 {
		return nil
	}
	return buf.Bytes()[8:]
}

// indexProgressive builds the sample table of a non-fragmented track from
// stsz/stsc/stco/stts/ctts/stss.
func indexProgressive(ti *trackIndex, stbl *mp4.StblBox) error {
	if stbl.Stsz == nil || stbl.Stsc == nil || stbl.Stts == nil || (stbl.Stco == nil && stbl.Co64 == nil) {
		return errSampleTable
	}
	ts := ti.track.Timescale
	count := stbl.Stsz.SampleNumber

	var sync map[uint32]bool
	if stbl.Stss != nil {
		sync = make(map[uint32]bool, len(stbl.Stss.SampleNumber))
		for _, nr := range stbl.Stss.SampleNumber {
			sync[nr] = true
		}
	}

	ti.samples = make([]sampleRef, 0, count)
	prevChunk := -1
	var offset uint64
	var prevSize uint32
	for nr := uint32(1); nr <= count; nr++ {
		chunkNr, _, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
		if err != nil {
			return fmt.Errorf("sample %d: %w", nr, err)
		}
		if chunkNr != prevChunk {
			offset, err = chunkOffset(stbl, chunkNr)
			if err != nil {
				return fmt.Errorf("sample %d: %w", nr, err)
			}
			prevChunk = chunkNr
		} else {
			offset += uint64(prevSize)
		}
		size := stbl.Stsz.GetSampleSize(int(nr))
		prevSize = size

		decodeTime, dur := stbl.Stts.GetDecodeTime(nr)
		var cto int64
		if stbl.Ctts != nil {
			cto = int64(stbl.Ctts.GetCompositionTimeOffset(nr))
		}

		ti.samples = append(ti.samples, sampleRef{
			offset: int64(offset),
			size:   int(size),
			dts:    ticks(int64(decodeTime), ts),
			pts:    ticks(int64(decodeTime)+cto, ts),
			dur:    ticks(int64(dur), ts),
			key:    sync == nil || sync[nr],
		})
	}
	return nil
}

func chunkOffset(stbl *mp4.StblBox, chunkNr int) (uint64, error) {
	if stbl.Stco != nil {
		return stbl.Stco.GetOffset(chunkNr)
	}
	if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
		return 0, fmt.Errorf("chunk %d out of range", chunkNr)
	}
	return stbl.Co64.ChunkOffset[chunkNr-1], nil
}
