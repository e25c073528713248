package demux

import (
	"bytes"

	"github.com/user/playcore/pkg/pipeline"
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Top-level box types that may open an ISO-BMFF file.
var mp4LeadBoxes = map[string]bool{
	"ftyp": true, "styp": true, "moov": true, "moof": true,
	"free": true, "skip": true, "wide": true, "mdat": true,
}

// DetectFormat identifies the container from its leading bytes.
func DetectFormat(data []byte) (pipeline.ContainerFormat, error) {
	if len(data) == 0 {
		return pipeline.FormatUnknown, pipeline.ErrEmptyData
	}
	if len(data) < 12 {
		return pipeline.FormatUnknown, pipeline.ErrTooShort
	}

	if bytes.Equal(data[:4], ebmlMagic) {
		head := data
		if len(head) > 64 {
			head = head[:64]
		}
		if bytes.Contains(head, []byte("webm")) {
			return pipeline.FormatWebM, nil
		}
		return pipeline.FormatMatroska, nil
	}

	if mp4LeadBoxes[string(data[4:8])] {
		return pipeline.FormatMP4, nil
	}

	return pipeline.FormatUnknown, pipeline.ErrUnknownFormat
}
