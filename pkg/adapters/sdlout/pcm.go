// Package sdlout presents pictures in an SDL2 window and plays audio through
// an SDL2 queued audio device. The SDL parts build with the "sdl" tag.
package sdlout

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// ErrClosed is returned by Window.Run when the user closes the window.
var ErrClosed = errors.New("sdlout: window closed")

// bytesPerSample is the size of one AUDIO_F32 sample.
const bytesPerSample = 4

// encodeF32 converts interleaved samples to little-endian float32 bytes,
// scaled by gain and clipped to [-1, 1].
func encodeF32(samples []float32, gain float64) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	g := float32(gain)
	for i, s := range samples {
		v := s * g
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint32(out[i*bytesPerSample:], math.Float32bits(v))
	}
	return out
}

// pcmClock converts between queued byte counts and device time.
type pcmClock struct {
	rate     int
	channels int
}

func (c pcmClock) bytesPerSecond() int {
	return c.rate * c.channels * bytesPerSample
}

func (c pcmClock) duration(n uint64) time.Duration {
	bps := c.bytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n * uint64(time.Second) / uint64(bps))
}

// bytes returns the byte count covering d, rounded down to whole frames.
func (c pcmClock) bytes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	frames := int(d * time.Duration(c.rate) / time.Second)
	return frames * c.channels * bytesPerSample
}

// fit scales a w x h picture into a bw x bh box keeping the aspect ratio,
// centred. It returns the destination rectangle.
func fit(w, h, bw, bh int32) (x, y, dw, dh int32) {
	if w <= 0 || h <= 0 || bw <= 0 || bh <= 0 {
		return 0, 0, 0, 0
	}
	dw, dh = bw, bw*h/w
	if dh > bh {
		dw, dh = bh*w/h, bh
	}
	return (bw - dw) / 2, (bh - dh) / 2, dw, dh
}
