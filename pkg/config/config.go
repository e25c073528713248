// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/user/playcore/pkg/adapters/s3source"
	"github.com/user/playcore/pkg/orchestrator"
	"github.com/user/playcore/pkg/pipeline"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PLAYCORE_"

// Config represents the full configuration for playcore.
type Config struct {
	Playback PlaybackConfig `yaml:"playback"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Decoder  DecoderConfig  `yaml:"decoder"`
	Output   OutputConfig   `yaml:"output"`
	S3       S3Config       `yaml:"s3"`
	Log      LogConfig      `yaml:"log"`
}

// PlaybackConfig holds the player behaviour.
type PlaybackConfig struct {
	Autoplay    bool          `yaml:"autoplay"`
	Loop        bool          `yaml:"loop"`
	Volume      float64       `yaml:"volume"`
	Muted       bool          `yaml:"muted"`
	ShortSeek   time.Duration `yaml:"short_seek"`
	LongSeek    time.Duration `yaml:"long_seek"`
	SeekDelay   time.Duration `yaml:"seek_delay"`
	MaxPlayTime time.Duration `yaml:"max_play_time"`
}

// PipelineConfig holds queue and loop sizing.
type PipelineConfig struct {
	VideoHighWater   int     `yaml:"video_high_water"`
	AudioHighWater   int     `yaml:"audio_high_water"`
	MaxCyclesPerTick int     `yaml:"max_cycles_per_tick"`
	FPS              float64 `yaml:"fps"`
	Progressive      bool    `yaml:"progressive"`
	ChunkSize        int     `yaml:"chunk_size"`
}

// DecoderConfig holds the decode service settings.
type DecoderConfig struct {
	HardwareAcceleration bool   `yaml:"hwaccel"`
	Threads              int    `yaml:"threads"`
	FFmpegPath           string `yaml:"ffmpeg_path"`
	Transcode            bool   `yaml:"transcode"`
	Preset               string `yaml:"preset"`
	CRF                  int    `yaml:"crf"`
}

// OutputConfig selects where pictures and audio go.
type OutputConfig struct {
	Sink          string `yaml:"sink"` // null, snapshot or window
	SnapshotDir   string `yaml:"snapshot_dir"`
	SnapshotEvery int    `yaml:"snapshot_every"`
	SnapshotWidth int    `yaml:"snapshot_width"`
	Summary       string `yaml:"summary"` // markdown summary path, empty disables
}

// S3Config holds the S3 credentials for s3:// sources.
type S3Config struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console, text or json
}

// Sink kinds.
const (
	SinkNull     = "null"
	SinkSnapshot = "snapshot"
	SinkWindow   = "window"
)

// Defaults returns a Config with default values.
func Defaults() Config {
	queues := pipeline.DefaultQueueConfig()
	decoder := pipeline.DefaultDecoderOptions()
	return Config{
		Playback: PlaybackConfig{
			Autoplay:  true,
			Volume:    1.0,
			ShortSeek: 5 * time.Second,
			LongSeek:  30 * time.Second,
			SeekDelay: 150 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			VideoHighWater:   queues.VideoHighWater,
			AudioHighWater:   queues.AudioHighWater,
			MaxCyclesPerTick: 8,
			FPS:              60,
			Progressive:      true,
			ChunkSize:        256 * 1024,
		},
		Decoder: DecoderConfig{
			HardwareAcceleration: decoder.HardwareAcceleration,
			Threads:              decoder.Threads,
			Transcode:            true,
			Preset:               "veryfast",
			CRF:                  23,
		},
		Output: OutputConfig{
			Sink:          SinkNull,
			SnapshotDir:   "./snapshots",
			SnapshotEvery: 25,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from PLAYCORE_* variables looked up with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	boolean("AUTOPLAY", &c.Playback.Autoplay)
	boolean("LOOP", &c.Playback.Loop)
	float("VOLUME", &c.Playback.Volume)
	boolean("MUTED", &c.Playback.Muted)
	duration("SEEK_DELAY", &c.Playback.SeekDelay)
	duration("MAX_PLAY_TIME", &c.Playback.MaxPlayTime)

	integer("VIDEO_HIGH_WATER", &c.Pipeline.VideoHighWater)
	integer("AUDIO_HIGH_WATER", &c.Pipeline.AudioHighWater)
	float("FPS", &c.Pipeline.FPS)
	boolean("PROGRESSIVE", &c.Pipeline.Progressive)

	boolean("HWACCEL", &c.Decoder.HardwareAcceleration)
	integer("THREADS", &c.Decoder.Threads)
	str("FFMPEG_PATH", &c.Decoder.FFmpegPath)
	boolean("TRANSCODE", &c.Decoder.Transcode)

	str("SINK", &c.Output.Sink)
	str("SNAPSHOT_DIR", &c.Output.SnapshotDir)
	str("SUMMARY", &c.Output.Summary)

	str("S3_REGION", &c.S3.Region)
	str("S3_ACCESS_KEY_ID", &c.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey)
	str("S3_ENDPOINT", &c.S3.Endpoint)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate checks the configuration for values the player cannot use.
func (c Config) Validate() error {
	var errs []error
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		errs = append(errs, fmt.Errorf("playback.volume must be within [0, 1], got %v", c.Playback.Volume))
	}
	if c.Playback.SeekDelay < 0 {
		errs = append(errs, errors.New("playback.seek_delay must not be negative"))
	}
	if c.Pipeline.VideoHighWater <= 0 || c.Pipeline.AudioHighWater <= 0 {
		errs = append(errs, errors.New("pipeline high-water marks must be positive"))
	}
	if c.Pipeline.FPS <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.fps must be positive, got %v", c.Pipeline.FPS))
	}
	switch c.Output.Sink {
	case SinkNull, SinkWindow:
	case SinkSnapshot:
		if c.Output.SnapshotDir == "" {
			errs = append(errs, errors.New("output.snapshot_dir is required for the snapshot sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("output.sink must be one of null, snapshot, window; got %q", c.Output.Sink))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console, text or json; got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ToOrchestratorConfig converts Config to orchestrator.Config.
func (c Config) ToOrchestratorConfig(location string) orchestrator.Config {
	return orchestrator.Config{
		Location:  location,
		Autoplay:  c.Playback.Autoplay,
		Loop:      c.Playback.Loop,
		Volume:    c.Playback.Volume,
		Muted:     c.Playback.Muted,
		SeekDelay: c.Playback.SeekDelay,
		ShortSeek: c.Playback.ShortSeek,
		LongSeek:  c.Playback.LongSeek,

		Decoder: pipeline.DecoderOptions{
			HardwareAcceleration: c.Decoder.HardwareAcceleration,
			Threads:              c.Decoder.Threads,
		},
		Queues: pipeline.QueueConfig{
			VideoHighWater: c.Pipeline.VideoHighWater,
			AudioHighWater: c.Pipeline.AudioHighWater,
		},
		MaxCyclesPerTick: c.Pipeline.MaxCyclesPerTick,

		Progressive: c.Pipeline.Progressive,
		ChunkSize:   c.Pipeline.ChunkSize,
		MaxPlayTime: c.Playback.MaxPlayTime,
	}
}

// ToS3Config converts the S3 section for the s3source adapter.
func (c Config) ToS3Config() s3source.Config {
	return s3source.Config{
		Region:          c.S3.Region,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		Endpoint:        c.S3.Endpoint,
	}
}
