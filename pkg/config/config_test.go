package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.True(t, cfg.Playback.Autoplay)
	assert.Equal(t, 1.0, cfg.Playback.Volume)
	assert.Equal(t, 150*time.Millisecond, cfg.Playback.SeekDelay)
	assert.Equal(t, 30, cfg.Pipeline.VideoHighWater)
	assert.Equal(t, 50, cfg.Pipeline.AudioHighWater)
	assert.Equal(t, SinkNull, cfg.Output.Sink)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playcore.yaml")
	content := `
playback:
  loop: true
  volume: 0.5
  seek_delay: 300ms
pipeline:
  video_high_water: 12
decoder:
  hwaccel: false
  ffmpeg_path: /opt/ffmpeg/bin/ffmpeg
output:
  sink: snapshot
  snapshot_dir: /tmp/snaps
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.Playback.Loop)
	assert.Equal(t, 0.5, cfg.Playback.Volume)
	assert.Equal(t, 300*time.Millisecond, cfg.Playback.SeekDelay)
	assert.Equal(t, 12, cfg.Pipeline.VideoHighWater)
	assert.Equal(t, 50, cfg.Pipeline.AudioHighWater, "unset fields keep their defaults")
	assert.False(t, cfg.Decoder.HardwareAcceleration)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.Decoder.FFmpegPath)
	assert.Equal(t, SinkSnapshot, cfg.Output.Sink)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("playback: [1, 2"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PLAYCORE_LOOP":          "true",
		"PLAYCORE_VOLUME":        "0.25",
		"PLAYCORE_MAX_PLAY_TIME": "2m",
		"PLAYCORE_SINK":          "window",
		"PLAYCORE_S3_REGION":     "eu-west-1",
		"PLAYCORE_LOG_LEVEL":     "debug",
		"UNRELATED":              "x",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Defaults()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.True(t, cfg.Playback.Loop)
	assert.Equal(t, 0.25, cfg.Playback.Volume)
	assert.Equal(t, 2*time.Minute, cfg.Playback.MaxPlayTime)
	assert.Equal(t, SinkWindow, cfg.Output.Sink)
	assert.Equal(t, "eu-west-1", cfg.ToS3Config().Region)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	env := map[string]string{
		"PLAYCORE_LOOP":       "maybe",
		"PLAYCORE_THREADS":    "four",
		"PLAYCORE_SEEK_DELAY": "soon",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Defaults()
	err := cfg.ApplyEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PLAYCORE_LOOP")
	assert.Contains(t, err.Error(), "PLAYCORE_THREADS")
	assert.Contains(t, err.Error(), "PLAYCORE_SEEK_DELAY")
	assert.False(t, cfg.Playback.Loop, "invalid values leave the field unchanged")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PLAYCORE_TEST_DOTENV=loaded\n"), 0644))
	t.Setenv("PLAYCORE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("PLAYCORE_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "none.env"), path))
	assert.Equal(t, "loaded", os.Getenv("PLAYCORE_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"volume", func(c *Config) { c.Playback.Volume = 1.5 }},
		{"seek delay", func(c *Config) { c.Playback.SeekDelay = -time.Second }},
		{"high water", func(c *Config) { c.Pipeline.VideoHighWater = 0 }},
		{"fps", func(c *Config) { c.Pipeline.FPS = 0 }},
		{"sink", func(c *Config) { c.Output.Sink = "hdmi" }},
		{"snapshot dir", func(c *Config) { c.Output.Sink = SinkSnapshot; c.Output.SnapshotDir = "" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestToOrchestratorConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Playback.Loop = true
	cfg.Pipeline.Progressive = false
	cfg.Decoder.Threads = 4

	oc := cfg.ToOrchestratorConfig("movie.mp4")
	assert.Equal(t, "movie.mp4", oc.Location)
	assert.True(t, oc.Loop)
	assert.False(t, oc.Progressive)
	assert.Equal(t, 4, oc.Decoder.Threads)
	assert.Equal(t, 30, oc.Queues.VideoHighWater)
	assert.Equal(t, 150*time.Millisecond, oc.SeekDelay)
}
