package filesink

import (
	"errors"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/playcore/pkg/mocks"
	"github.com/user/playcore/pkg/pipeline"
)

// testBaseDir is a platform-independent base directory for tests
var testBaseDir = filepath.Join("snapshots")

func picture(ts time.Duration) *pipeline.Picture {
	return pipeline.NewPicture(nil, 16, 9, ts, false, nil)
}

func TestSink_SavesEveryNth(t *testing.T) {
	fs := mocks.NewFileSystem()
	renderer := &mocks.SnapshotRenderer{}
	sink := New(Options{Dir: testBaseDir, Every: 3}, fs, renderer)

	for i := 0; i < 7; i++ {
		if err := sink.Present(picture(time.Duration(i) * 40 * time.Millisecond)); err != nil {
			t.Fatalf("Present failed: %v", err)
		}
	}

	saved := sink.Saved()
	if len(saved) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(saved))
	}
	expectedPath := filepath.Join(testBaseDir, "snapshot-00003.png")
	if saved[1] != expectedPath {
		t.Errorf("expected %s, got %s", expectedPath, saved[1])
	}
	if _, ok := fs.GetFile(expectedPath); !ok {
		t.Errorf("expected file to be saved at %s", expectedPath)
	}
	if ok, _ := fs.Exists(testBaseDir); !ok {
		t.Errorf("expected directory %s to be created", testBaseDir)
	}
}

func TestSink_Overlay(t *testing.T) {
	fs := mocks.NewFileSystem()
	renderer := &mocks.SnapshotRenderer{}
	sink := New(Options{Dir: testBaseDir, Every: 1}, fs, renderer)

	_ = sink.Present(picture(1500 * time.Millisecond))
	sink.SetDuration(6 * time.Second)
	_ = sink.Present(picture(3 * time.Second))

	if len(renderer.Overlays) != 2 {
		t.Fatalf("expected 2 renders, got %d", len(renderer.Overlays))
	}
	if renderer.Overlays[0].Caption != "00:01.500" {
		t.Errorf("caption = %q", renderer.Overlays[0].Caption)
	}
	if renderer.Overlays[0].Progress >= 0 {
		t.Error("progress must be hidden without a duration")
	}
	if renderer.Overlays[1].Progress != 0.5 {
		t.Errorf("progress = %v, want 0.5", renderer.Overlays[1].Progress)
	}
}

func TestSink_EncodeError(t *testing.T) {
	fs := mocks.NewFileSystem()
	renderer := &mocks.SnapshotRenderer{}
	renderer.EncodePNGFunc = func(img image.Image) ([]byte, error) {
		return nil, errors.New("encode error")
	}
	sink := New(Options{Dir: testBaseDir}, fs, renderer)

	if err := sink.Present(picture(0)); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestSink_ClosedRejects(t *testing.T) {
	sink := New(Options{Dir: testBaseDir}, mocks.NewFileSystem(), &mocks.SnapshotRenderer{})
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sink.Present(picture(0)); !errors.Is(err, pipeline.ErrDisposed) {
		t.Errorf("expected ErrDisposed, got %v", err)
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00.000"},
		{1500 * time.Millisecond, "00:01.500"},
		{61*time.Second + 7*time.Millisecond, "01:01.007"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.in); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
