package filesource

import (
	"context"
	"io"
	"testing"

	"github.com/user/playcore/pkg/adapters/aferofs"
)

func TestSource_Open(t *testing.T) {
	fs := aferofs.NewMem()
	if err := fs.WriteFile("/media/a.mp4", []byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	src := New(fs)

	for _, loc := range []string{"/media/a.mp4", "file:///media/a.mp4"} {
		if !src.Handles(loc) {
			t.Errorf("expected %s to be handled", loc)
		}
		r, size, err := src.Open(context.Background(), loc)
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", loc, err)
		}
		data, _ := io.ReadAll(r)
		r.Close()
		if size != 10 || string(data) != "0123456789" {
			t.Errorf("Open(%s) = %q, size %d", loc, data, size)
		}
	}
}

func TestSource_Rejects(t *testing.T) {
	src := New(aferofs.NewMem())
	if src.Handles("s3://bucket/key") {
		t.Error("s3 URLs belong to another source")
	}
	if _, _, err := src.Open(context.Background(), "/missing"); err == nil {
		t.Error("expected error for missing file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := src.Open(ctx, "/missing"); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
