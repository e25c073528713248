package sdlout

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestEncodeF32(t *testing.T) {
	out := encodeF32([]float32{0.5, -0.25, 0.9, -0.9}, 2)
	if len(out) != 16 {
		t.Fatalf("len = %d, want 16", len(out))
	}
	want := []float32{1, -0.5, 1, -1}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
		if got != w {
			t.Errorf("sample %d = %v, want %v", i, got, w)
		}
	}
}

func TestPCMClock(t *testing.T) {
	c := pcmClock{rate: 48000, channels: 2}

	if got := c.bytesPerSecond(); got != 384000 {
		t.Errorf("bytesPerSecond = %d", got)
	}
	if got := c.duration(384000 / 2); got != 500*time.Millisecond {
		t.Errorf("duration = %v, want 500ms", got)
	}
	if got := c.bytes(20 * time.Millisecond); got != 960*2*4 {
		t.Errorf("bytes(20ms) = %d", got)
	}
	if got := c.bytes(-time.Second); got != 0 {
		t.Errorf("bytes(negative) = %d", got)
	}
	if got := (pcmClock{}).duration(100); got != 0 {
		t.Errorf("zero clock duration = %v", got)
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h, bw, bh int32
		x, y, dw, dh int32
	}{
		{1920, 1080, 1280, 720, 0, 0, 1280, 720},
		{640, 480, 1280, 720, 160, 0, 960, 720},
		{1280, 720, 800, 800, 0, 175, 800, 450},
		{0, 480, 800, 600, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		x, y, dw, dh := fit(tt.w, tt.h, tt.bw, tt.bh)
		if x != tt.x || y != tt.y || dw != tt.dw || dh != tt.dh {
			t.Errorf("fit(%d,%d,%d,%d) = %d,%d,%d,%d; want %d,%d,%d,%d",
				tt.w, tt.h, tt.bw, tt.bh, x, y, dw, dh, tt.x, tt.y, tt.dw, tt.dh)
		}
	}
}
