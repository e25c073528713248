package ffmpeg

import (
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/hevc"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/user/playcore/pkg/adapters/codecdetect"
	"github.com/user/playcore/pkg/pipeline"
)

// framer turns container samples into an elementary stream ffmpeg can read
// from a pipe.
type framer interface {
	// inputFormat is the ffmpeg demuxer name for the stream.
	inputFormat() string

	// header is written once when the process starts.
	header() []byte

	frame(sample pipeline.EncodedSample) ([]byte, error)
}

func newFramer(track pipeline.Track) (framer, error) {
	switch codecdetect.Codec(track.Codec) {
	case codecdetect.CodecH264:
		if len(track.Config) == 0 {
			// samples already carry Annex B start codes
			return &annexBFramer{format: "h264", annexB: true}, nil
		}
		rec, err := avc.DecodeAVCDecConfRec(track.Config)
		if err != nil {
			return nil, fmt.Errorf("parse avcC: %w", err)
		}
		sets := append(append([][]byte{}, rec.SPSnalus...), rec.PPSnalus...)
		return &annexBFramer{format: "h264", paramSets: sets}, nil

	case codecdetect.CodecH265:
		if len(track.Config) == 0 {
			return &annexBFramer{format: "hevc", annexB: true}, nil
		}
		rec, err := hevc.DecodeHEVCDecConfRec(track.Config)
		if err != nil {
			return nil, fmt.Errorf("parse hvcC: %w", err)
		}
		var sets [][]byte
		for _, arr := range rec.NaluArrays {
			sets = append(sets, arr.Nalus...)
		}
		return &annexBFramer{format: "hevc", paramSets: sets}, nil

	case codecdetect.CodecVP8:
		return newIVFFramer("VP80", track), nil
	case codecdetect.CodecVP9:
		return newIVFFramer("VP90", track), nil
	case codecdetect.CodecAV1:
		return newIVFFramer("AV01", track), nil

	case codecdetect.CodecAAC:
		var asc mpeg4audio.AudioSpecificConfig
		if err := asc.Unmarshal(track.Config); err != nil {
			return nil, fmt.Errorf("parse AudioSpecificConfig: %w", err)
		}
		return &adtsFramer{asc: asc}, nil

	case codecdetect.CodecMP3:
		return rawFramer("mp3"), nil
	}
	return nil, fmt.Errorf("%w: %s", pipeline.ErrUnsupportedCodec, track.Codec)
}

// annexBFramer converts length-prefixed NAL units into Annex B and repeats
// the parameter sets in front of every keyframe.
type annexBFramer struct {
	format    string
	paramSets [][]byte
	annexB    bool
}

func (f *annexBFramer) inputFormat() string { return f.format }
func (f *annexBFramer) header() []byte      { return nil }

func (f *annexBFramer) frame(sample pipeline.EncodedSample) ([]byte, error) {
	if f.annexB {
		return sample.Data, nil
	}
	var nalus h264.AVCC
	if err := nalus.Unmarshal(sample.Data); err != nil {
		return nil, fmt.Errorf("split NAL units: %w", err)
	}
	if sample.Keyframe && len(f.paramSets) > 0 {
		nalus = append(append(h264.AVCC{}, f.paramSets...), nalus...)
	}
	return h264.AnnexB(nalus).Marshal()
}

// adtsFramer prefixes every raw AAC access unit with an ADTS header.
type adtsFramer struct {
	asc mpeg4audio.AudioSpecificConfig
}

func (f *adtsFramer) inputFormat() string { return "aac" }
func (f *adtsFramer) header() []byte      { return nil }

func (f *adtsFramer) frame(sample pipeline.EncodedSample) ([]byte, error) {
	pkts := mpeg4audio.ADTSPackets{{
		Type:         f.asc.Type,
		SampleRate:   f.asc.SampleRate,
		ChannelCount: f.asc.ChannelCount,
		AU:           sample.Data,
	}}
	return pkts.Marshal()
}

// ivfFramer wraps VP8, VP9 and AV1 frames in the IVF container.
type ivfFramer struct {
	fourcc string
	width  int
	height int
	scale  uint32
}

func newIVFFramer(fourcc string, track pipeline.Track) *ivfFramer {
	scale := track.Timescale
	if scale == 0 {
		scale = 1000
	}
	return &ivfFramer{fourcc: fourcc, width: track.Width, height: track.Height, scale: scale}
}

func (f *ivfFramer) inputFormat() string { return "ivf" }

func (f *ivfFramer) header() []byte {
	h := make([]byte, 32)
	copy(h[0:4], "DKIF")
	binary.LittleEndian.PutUint16(h[4:], 0)  // version
	binary.LittleEndian.PutUint16(h[6:], 32) // header size
	copy(h[8:12], f.fourcc)
	binary.LittleEndian.PutUint16(h[12:], uint16(f.width))
	binary.LittleEndian.PutUint16(h[14:], uint16(f.height))
	binary.LittleEndian.PutUint32(h[16:], f.scale) // timebase denominator
	binary.LittleEndian.PutUint32(h[20:], 1)       // timebase numerator
	return h
}

func (f *ivfFramer) frame(sample pipeline.EncodedSample) ([]byte, error) {
	out := make([]byte, 12+len(sample.Data))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(sample.Data)))
	ticks := uint64(sample.PTS) * uint64(f.scale) / uint64(1e9)
	binary.LittleEndian.PutUint64(out[4:], ticks)
	copy(out[12:], sample.Data)
	return out, nil
}

// rawFramer passes self-delimiting frames through unchanged.
type rawFramer string

func (f rawFramer) inputFormat() string { return string(f) }
func (f rawFramer) header() []byte      { return nil }

func (f rawFramer) frame(sample pipeline.EncodedSample) ([]byte, error) {
	return sample.Data, nil
}
