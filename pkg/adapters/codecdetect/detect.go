// Package codecdetect maps container-native codec identifiers to the
// normalized codec names used across playcore.
package codecdetect

import "strings"

// Codec represents a normalized codec name.
type Codec string

const (
	CodecH264    Codec = "h264"
	CodecH265    Codec = "h265"
	CodecAV1     Codec = "av1"
	CodecVP8     Codec = "vp8"
	CodecVP9     Codec = "vp9"
	CodecAAC     Codec = "aac"
	CodecMP3     Codec = "mp3"
	CodecOpus    Codec = "opus"
	CodecVorbis  Codec = "vorbis"
	CodecFLAC    Codec = "flac"
	CodecAC3     Codec = "ac3"
	CodecUnknown Codec = "unknown"
)

// IsVideo reports whether the codec carries pictures.
func (c Codec) IsVideo() bool {
	switch c {
	case CodecH264, CodecH265, CodecAV1, CodecVP8, CodecVP9:
		return true
	}
	return false
}

// FromSampleEntry maps an MP4 sample entry box type (stsd child) to a codec.
func FromSampleEntry(boxType string) Codec {
	switch boxType {
	case "avc1", "avc3":
		return CodecH264
	case "hvc1", "hev1":
		return CodecH265
	case "av01":
		return CodecAV1
	case "vp08":
		return CodecVP8
	case "vp09":
		return CodecVP9
	case "mp4a":
		return CodecAAC
	case ".mp3", "mp3 ":
		return CodecMP3
	case "Opus":
		return CodecOpus
	case "fLaC":
		return CodecFLAC
	case "ac-3":
		return CodecAC3
	}
	return CodecUnknown
}

// FromMatroska maps a Matroska/WebM CodecID to a codec.
func FromMatroska(codecID string) Codec {
	switch {
	case codecID == "V_MPEG4/ISO/AVC":
		return CodecH264
	case codecID == "V_MPEGH/ISO/HEVC":
		return CodecH265
	case codecID == "V_AV1":
		return CodecAV1
	case codecID == "V_VP8":
		return CodecVP8
	case codecID == "V_VP9":
		return CodecVP9
	case strings.HasPrefix(codecID, "A_AAC"):
		return CodecAAC
	case codecID == "A_MPEG/L3":
		return CodecMP3
	case codecID == "A_OPUS":
		return CodecOpus
	case codecID == "A_VORBIS":
		return CodecVorbis
	case codecID == "A_FLAC":
		return CodecFLAC
	case codecID == "A_AC3":
		return CodecAC3
	}
	return CodecUnknown
}
