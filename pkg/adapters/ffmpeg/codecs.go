package ffmpeg

import "github.com/user/playcore/pkg/adapters/codecdetect"

// codecSpec describes how one codec is fed to ffmpeg.
type codecSpec struct {
	software []string // decoder names, first available wins
	hardware []string // tried first when hardware acceleration is requested
}

// Hardware decoders are listed by preference. Entries that the local ffmpeg
// build does not report are skipped.
var codecSpecs = map[codecdetect.Codec]codecSpec{
	codecdetect.CodecH264: {
		software: []string{"h264"},
		hardware: []string{"h264_rkmpp", "h264_cuvid", "h264_qsv", "h264_videotoolbox", "h264_v4l2m2m"},
	},
	codecdetect.CodecH265: {
		software: []string{"hevc"},
		hardware: []string{"hevc_rkmpp", "hevc_cuvid", "hevc_qsv", "hevc_videotoolbox"},
	},
	codecdetect.CodecVP8: {
		software: []string{"vp8", "libvpx"},
		hardware: []string{"vp8_cuvid", "vp8_qsv"},
	},
	codecdetect.CodecVP9: {
		software: []string{"vp9", "libvpx-vp9"},
		hardware: []string{"vp9_rkmpp", "vp9_cuvid", "vp9_qsv"},
	},
	codecdetect.CodecAV1: {
		software: []string{"libdav1d", "av1", "libaom-av1"},
		hardware: []string{"av1_cuvid", "av1_qsv"},
	},
	codecdetect.CodecAAC: {software: []string{"aac"}},
	codecdetect.CodecMP3: {software: []string{"mp3float", "mp3"}},
}

// pickDecoder returns the decoder name for codec among the available ones.
func pickDecoder(codec string, hw bool, available map[string]bool) (string, bool) {
	names, ok := codecSpecs[codecdetect.Codec(codec)]
	if !ok {
		return "", false
	}
	if hw {
		for _, name := range names.hardware {
			if available[name] {
				return name, true
			}
		}
	}
	for _, name := range names.software {
		if available[name] {
			return name, true
		}
	}
	return "", false
}
