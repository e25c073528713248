package mocks

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
)

// TestSPS and TestPPS are a valid 640x480 H.264 Baseline parameter set pair.
var (
	TestSPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
		0x20,
	}
	TestPPS = []byte{0x68, 0xce, 0x38, 0x80}
)

const (
	VideoTimescale = 90000
	VideoFPS       = 25
	AudioTimescale = 48000
	AudioFrame     = 960 // 20ms
)

// MP4Options describes a generated fragmented MP4.
type MP4Options struct {
	Seconds   int
	NoAudio   bool
	DropAudio bool // audio trak without a sample description
	Mfra      bool // append an empty mfra trailer
	Width     int  // default 320
	Height    int  // default 240
}

// MP4Fixture is a generated fragmented MP4.
type MP4Fixture struct {
	Data      []byte
	HeaderLen int   // bytes of ftyp+moov
	SecondEnd []int // end offset of each second of media
}

// BuildFragmentedMP4 writes an H.264 + AAC fragmented MP4 with one video
// and one audio fragment per second. Every second starts with a keyframe.
func BuildFragmentedMP4(opts MP4Options) (MP4Fixture, error) {
	if opts.Width == 0 {
		opts.Width = 320
	}
	if opts.Height == 0 {
		opts.Height = 240
	}

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(VideoTimescale, "video", "und")
	avcC, err := mp4.CreateAvcC([][]byte{TestSPS}, [][]byte{TestPPS}, true)
	if err != nil {
		return MP4Fixture{}, fmt.Errorf("avcC: %w", err)
	}
	entry := mp4.CreateVisualSampleEntryBox("avc1", uint16(opts.Width), uint16(opts.Height), avcC)
	init.Moov.Traks[0].Mdia.Minf.Stbl.Stsd.AddChild(entry)

	withAudio := !opts.NoAudio && !opts.DropAudio
	if !opts.NoAudio {
		init.AddEmptyTrack(AudioTimescale, "audio", "und")
		if !opts.DropAudio {
			if err := init.Moov.Traks[1].SetAACDescriptor(2, AudioTimescale); err != nil { // AAC-LC
				return MP4Fixture{}, fmt.Errorf("aac descriptor: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6", "avc1", "mp41"})
	if err := ftyp.Encode(&buf); err != nil {
		return MP4Fixture{}, err
	}
	if err := init.Moov.Encode(&buf); err != nil {
		return MP4Fixture{}, err
	}
	fx := MP4Fixture{HeaderLen: buf.Len()}

	seq := uint32(1)
	vdur := uint32(VideoTimescale / VideoFPS)
	for sec := 0; sec < opts.Seconds; sec++ {
		vf, err := mp4.CreateFragment(seq, 1)
		if err != nil {
			return MP4Fixture{}, err
		}
		seq++
		for i := 0; i < VideoFPS; i++ {
			flags := mp4.NonSyncSampleFlags
			nalType := byte(0x41)
			if i == 0 {
				flags = mp4.SyncSampleFlags
				nalType = 0x65
			}
			data := []byte{0, 0, 0, 5, nalType, byte(sec), byte(i), 0xAA, 0xBB}
			vf.AddFullSample(mp4.FullSample{
				Sample:     mp4.Sample{Flags: flags, Size: uint32(len(data)), Dur: vdur},
				DecodeTime: uint64(sec*VideoTimescale) + uint64(i)*uint64(vdur),
				Data:       data,
			})
		}
		if err := vf.Encode(&buf); err != nil {
			return MP4Fixture{}, err
		}

		if withAudio {
			af, err := mp4.CreateFragment(seq, 2)
			if err != nil {
				return MP4Fixture{}, err
			}
			seq++
			for i := 0; i < AudioTimescale/AudioFrame; i++ {
				data := []byte{0x21, byte(sec), byte(i), 0x00}
				af.AddFullSample(mp4.FullSample{
					Sample:     mp4.Sample{Flags: mp4.SyncSampleFlags, Size: uint32(len(data)), Dur: AudioFrame},
					DecodeTime: uint64(sec*AudioTimescale) + uint64(i*AudioFrame),
					Data:       data,
				})
			}
			if err := af.Encode(&buf); err != nil {
				return MP4Fixture{}, err
			}
		}
		fx.SecondEnd = append(fx.SecondEnd, buf.Len())
	}

	if opts.Mfra {
		buf.Write([]byte{0, 0, 0, 8, 'm', 'f', 'r', 'a'})
	}

	fx.Data = buf.Bytes()
	return fx, nil
}

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

// BuildWebM writes a 640x360 VP8 + Opus WebM with 25fps video, 20ms audio
// blocks and a keyframe every second.
func BuildWebM(seconds int) ([]byte, error) {
	var buf bytes.Buffer
	writers, err := webm.NewSimpleBlockWriter(nopWriteCloser{&buf}, webmTracks())
	if err != nil {
		return nil, err
	}
	video, audio := writers[0], writers[1]

	// timestamps are in milliseconds (default TimecodeScale)
	for ms := int64(0); ms < int64(seconds)*1000; ms += 20 {
		if ms%40 == 0 {
			if _, err := video.Write(ms%1000 == 0, ms, []byte{0x10, byte(ms / 40)}); err != nil {
				return nil, err
			}
		}
		if _, err := audio.Write(true, ms, []byte{0xFC, byte(ms / 20)}); err != nil {
			return nil, err
		}
	}
	if err := video.Close(); err != nil {
		return nil, err
	}
	if err := audio.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func webmTracks() []webm.TrackEntry {
	return []webm.TrackEntry{
		{
			Name:            "Video",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         "V_VP8",
			TrackType:       1,
			DefaultDuration: 40000000,
			Video: &webm.Video{
				PixelWidth:  640,
				PixelHeight: 360,
			},
		},
		{
			Name:            "Audio",
			TrackNumber:     2,
			TrackUID:        2,
			CodecID:         "A_OPUS",
			TrackType:       2,
			DefaultDuration: 20000000,
			Audio: &webm.Audio{
				SamplingFrequency: 48000.0,
				Channels:          2,
			},
		},
	}
}

// WebMBlock is one block of a hand-laid cluster. Time is relative to the
// cluster timecode in milliseconds.
type WebMBlock struct {
	Track    uint64
	Time     int16
	Key      bool
	Group    bool   // write a BlockGroup instead of a SimpleBlock
	Duration uint64 // BlockDuration of a group, 0 to omit
	Data     []byte
}

// WebMCluster is a cluster whose children are written in the given order.
type WebMCluster struct {
	Timecode uint64
	Blocks   []WebMBlock
}

// BuildWebMClusters writes the tracks of BuildWebM followed by the given
// clusters. sized selects clusters with a known data size; otherwise they
// are written open-ended like a live muxer does.
func BuildWebMClusters(clusters []WebMCluster, sized bool) ([]byte, error) {
	var buf bytes.Buffer
	head := struct {
		Header  webm.EBMLHeader `ebml:"EBML"`
		Segment struct {
			Info   webm.Info   `ebml:"Info"`
			Tracks webm.Tracks `ebml:"Tracks"`
		} `ebml:"Segment,size=unknown"`
	}{Header: *webm.DefaultEBMLHeader}
	head.Segment.Info = webm.Info{TimecodeScale: 1000000}
	head.Segment.Tracks.TrackEntry = webmTracks()
	if err := ebml.Marshal(&head, &buf); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	for _, cl := range clusters {
		var body bytes.Buffer
		tc := struct {
			Timecode uint64 `ebml:"Timecode"`
		}{cl.Timecode}
		if err := ebml.Marshal(&tc, &body); err != nil {
			return nil, err
		}
		for _, b := range cl.Blocks {
			block := ebml.Block{TrackNumber: b.Track, Timecode: b.Time, Keyframe: b.Key, Data: [][]byte{b.Data}}
			var err error
			if b.Group {
				g := struct {
					BlockGroup webm.BlockGroup `ebml:"BlockGroup"`
				}{webm.BlockGroup{BlockDuration: b.Duration, Block: block}}
				if !b.Key {
					g.BlockGroup.ReferenceBlock = -40
				}
				g.BlockGroup.Block.Keyframe = false
				err = ebml.Marshal(&g, &body)
			} else {
				sb := struct {
					SimpleBlock ebml.Block `ebml:"SimpleBlock"`
				}{block}
				err = ebml.Marshal(&sb, &body)
			}
			if err != nil {
				return nil, err
			}
		}

		buf.Write(ebml.ElementCluster.Bytes())
		size := make([]byte, 8)
		if sized {
			binary.BigEndian.PutUint64(size, uint64(body.Len())|1<<56)
		} else {
			binary.BigEndian.PutUint64(size, 1<<57-1) // all ones: unknown
		}
		buf.Write(size)
		buf.Write(body.Bytes())
	}
	return buf.Bytes(), nil
}

// ProgressiveOptions describes a generated non-fragmented MP4.
type ProgressiveOptions struct {
	Seconds  int
	Ctts     bool // shift every video PTS by two frames
	Co64     bool // 64-bit chunk offsets
	MoovLast bool // write moov after mdat
}

// ProgressiveFixture is a generated non-fragmented MP4.
type ProgressiveFixture struct {
	Data      []byte
	MoovStart int
	MoovEnd   int
	MdatStart int // first payload byte
}

const progressiveChunk = 200 // ms of media per chunk

// BuildProgressiveMP4 writes an H.264 + AAC MP4 with a classic sample table.
// Media is interleaved in 200ms chunks, video first, with a keyframe every
// second.
func BuildProgressiveMP4(opts ProgressiveOptions) (ProgressiveFixture, error) {
	vdur := uint32(VideoTimescale / VideoFPS)
	vPerChunk := VideoFPS * progressiveChunk / 1000
	aPerChunk := AudioTimescale / AudioFrame * progressiveChunk / 1000
	chunks := opts.Seconds * 1000 / progressiveChunk

	// mdat payload and chunk offsets relative to it
	var payload bytes.Buffer
	var vSizes, aSizes []uint32
	var vRel, aRel []uint64
	for ch := 0; ch < chunks; ch++ {
		vRel = append(vRel, uint64(payload.Len()))
		for i := 0; i < vPerChunk; i++ {
			n := ch*vPerChunk + i
			sec, idx := n/VideoFPS, n%VideoFPS
			nalType := byte(0x41)
			if idx == 0 {
				nalType = 0x65
			}
			data := []byte{0, 0, 0, 5, nalType, byte(sec), byte(idx), 0xAA, 0xBB}
			payload.Write(data)
			vSizes = append(vSizes, uint32(len(data)))
		}
		aRel = append(aRel, uint64(payload.Len()))
		for i := 0; i < aPerChunk; i++ {
			n := ch*aPerChunk + i
			perSec := AudioTimescale / AudioFrame
			data := []byte{0x21, byte(n / perSec), byte(n % perSec), 0x00, 0x01}
			payload.Write(data)
			aSizes = append(aSizes, uint32(len(data)))
		}
	}

	avcC, err := mp4.CreateAvcC([][]byte{TestSPS}, [][]byte{TestPPS}, true)
	if err != nil {
		return ProgressiveFixture{}, fmt.Errorf("avcC: %w", err)
	}
	video := mp4.CreateEmptyTrak(1, VideoTimescale, "video", "und")
	video.Mdia.Minf.Stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("avc1", 320, 240, avcC))
	video.Mdia.Mdhd.Duration = uint64(len(vSizes)) * uint64(vdur)
	audio := mp4.CreateEmptyTrak(2, AudioTimescale, "audio", "und")
	if err := audio.SetAACDescriptor(2, AudioTimescale); err != nil { // AAC-LC
		return ProgressiveFixture{}, fmt.Errorf("aac descriptor: %w", err)
	}
	audio.Mdia.Mdhd.Duration = uint64(len(aSizes)) * AudioFrame

	fillSampleTable(video.Mdia.Minf.Stbl, vSizes, vdur, uint32(vPerChunk), opts.Co64)
	fillSampleTable(audio.Mdia.Minf.Stbl, aSizes, AudioFrame, uint32(aPerChunk), opts.Co64)
	vstbl := video.Mdia.Minf.Stbl
	stss := &mp4.StssBox{}
	for nr := uint32(1); nr <= uint32(len(vSizes)); nr += VideoFPS {
		stss.SampleNumber = append(stss.SampleNumber, nr)
	}
	vstbl.AddChild(stss)
	if opts.Ctts {
		ctts := &mp4.CttsBox{}
		if err := ctts.AddSampleCountsAndOffset([]uint32{uint32(len(vSizes))}, []int32{int32(2 * vdur)}); err != nil {
			return ProgressiveFixture{}, err
		}
		vstbl.AddChild(ctts)
	}

	moov := mp4.NewMoovBox()
	mvhd := mp4.CreateMvhd()
	mvhd.Timescale = VideoTimescale
	mvhd.Duration = uint64(opts.Seconds) * VideoTimescale
	mvhd.NextTrackID = 3
	moov.AddChild(mvhd)
	moov.AddChild(video)
	moov.AddChild(audio)

	var out bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "avc1", "mp41"})
	if err := ftyp.Encode(&out); err != nil {
		return ProgressiveFixture{}, err
	}
	mdat := &mp4.MdatBox{}
	mdat.SetData(payload.Bytes())

	// Offsets do not change the moov size, so it is measured once with
	// placeholders.
	base := uint64(out.Len()) + mdat.HeaderSize()
	if !opts.MoovLast {
		setChunkOffsets(vstbl, vRel, 0)
		setChunkOffsets(audio.Mdia.Minf.Stbl, aRel, 0)
		base += moov.Size()
	}
	setChunkOffsets(vstbl, vRel, base)
	setChunkOffsets(audio.Mdia.Minf.Stbl, aRel, base)

	fx := ProgressiveFixture{}
	if opts.MoovLast {
		fx.MdatStart = out.Len() + int(mdat.HeaderSize())
		if err := mdat.Encode(&out); err != nil {
			return ProgressiveFixture{}, err
		}
		fx.MoovStart = out.Len()
		if err := moov.Encode(&out); err != nil {
			return ProgressiveFixture{}, err
		}
		fx.MoovEnd = out.Len()
	} else {
		fx.MoovStart = out.Len()
		if err := moov.Encode(&out); err != nil {
			return ProgressiveFixture{}, err
		}
		fx.MoovEnd = out.Len()
		fx.MdatStart = out.Len() + int(mdat.HeaderSize())
		if err := mdat.Encode(&out); err != nil {
			return ProgressiveFixture{}, err
		}
	}
	fx.Data = out.Bytes()
	return fx, nil
}

func fillSampleTable(stbl *mp4.StblBox, sizes []uint32, dur, perChunk uint32, co64 bool) {
	stbl.Stts.SampleCount = []uint32{uint32(len(sizes))}
	stbl.Stts.SampleTimeDelta = []uint32{dur}
	_ = stbl.Stsc.AddEntry(1, perChunk, 1)
	stbl.Stsz.SampleNumber = uint32(len(sizes))
	stbl.Stsz.SampleSize = sizes
	if !co64 {
		return
	}
	co := &mp4.Co64Box{}
	for i, child := range stbl.Children {
		if child == stbl.Stco {
			stbl.Children[i] = co
		}
	}
	stbl.Stco = nil
	stbl.Co64 = co
}

func setChunkOffsets(stbl *mp4.StblBox, rel []uint64, base uint64) {
	if stbl.Co64 != nil {
		stbl.Co64.ChunkOffset = stbl.Co64.ChunkOffset[:0]
		for _, r := range rel {
			stbl.Co64.ChunkOffset = append(stbl.Co64.ChunkOffset, base+r)
		}
		return
	}
	stbl.Stco.ChunkOffset = stbl.Stco.ChunkOffset[:0]
	for _, r := range rel {
		stbl.Stco.ChunkOffset = append(stbl.Stco.ChunkOffset, uint32(base+r))
	}
}
