package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/user/playcore/pkg/ports"
)

func TestLogrusLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrus(&buf, ports.LevelInfo, "json").WithComponent("demux")

	log.Debug("hidden %d", 1)
	log.Info("Opened %s source: %d tracks, duration %v", "mp4", 2, "3s")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["component"] != "demux" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["msg"] != "Opened mp4 source: 2 tracks, duration 3s" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestLogrusLogger_Quiet(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrus(&buf, ports.LevelQuiet, "text")
	log.Error("Playback failed: %v", "boom")
	if buf.Len() != 0 {
		t.Errorf("quiet logger wrote %q", buf.String())
	}
}

func TestConsoleLogger_Streams(t *testing.T) {
	var out, errOut bytes.Buffer
	log := NewConsoleTo(&out, &errOut, ports.LevelInfo, false)

	log.Debug("Configured %s", "#1 video h264 320x240")
	log.Info("Playing %s", "clip.mp4")
	log.Warn("Dropping sample: %v", "bad nal")

	if out.String() != "Playing clip.mp4\n" {
		t.Errorf("stdout = %q", out.String())
	}
	if errOut.String() != "Dropping sample: bad nal\n" {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestConsoleLogger_NestedComponents(t *testing.T) {
	var out bytes.Buffer
	log := NewConsoleTo(&out, &out, ports.LevelDebug, false).
		WithComponent("player").
		WithComponent("seek")

	log.Debug("Executing seek to %v", "5s")

	if got := strings.TrimSpace(out.String()); got != "[player/seek] Executing seek to 5s" {
		t.Errorf("got %q", got)
	}
}

func TestConsoleLogger_Color(t *testing.T) {
	var out bytes.Buffer
	log := NewConsoleTo(&out, &out, ports.LevelDebug, true)

	log.Error("Playback failed: %v", "boom")

	got := out.String()
	if !strings.HasPrefix(got, colorRed) || !strings.Contains(got, "Playback failed: boom") {
		t.Errorf("got %q", got)
	}
}

func TestConsoleLogger_Concurrent(t *testing.T) {
	var out bytes.Buffer
	log := NewConsoleTo(&out, &out, ports.LevelInfo, false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			log.WithComponent("decode").Info("Transcoded to %d bytes", n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected 8 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[decode] Transcoded to ") {
			t.Errorf("garbled line %q", line)
		}
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(*NoopLogger); !ok {
		t.Error("nil logger should become a NoopLogger")
	}

	var buf bytes.Buffer
	console := NewConsoleTo(&buf, &buf, ports.LevelDebug, false)
	if OrNoop(console) != ports.Logger(console) {
		t.Error("non-nil logger should be returned unchanged")
	}
}
