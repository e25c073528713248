// Package main provides the CLI entry point for playcore.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/playcore/pkg/adapters/aferofs"
	"github.com/user/playcore/pkg/adapters/ffmpeg"
	"github.com/user/playcore/pkg/adapters/filesource"
	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/adapters/s3source"
	"github.com/user/playcore/pkg/adapters/sdlout"
	"github.com/user/playcore/pkg/adapters/smartdecoder"
	"github.com/user/playcore/pkg/config"
	"github.com/user/playcore/pkg/orchestrator"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
	"github.com/user/playcore/pkg/summarizer"
)

var version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %v", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "playcore",
		Usage:   l10n.T("Play audio and video files through the playcore pipeline"),
		Version: version,
		Description: l10n.T("playcore demuxes MP4 and WebM sources, decodes them with ffmpeg " +
			"and presents them to a window, snapshot files or nowhere at all."),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    l10n.T("YAML configuration file"),
				Category: l10n.T("Configuration"),
			},
			&cli.StringSliceFlag{
				Name:     "env-file",
				Value:    cli.NewStringSlice(".env"),
				Usage:    l10n.T("Files with PLAYCORE_* variables, missing files are ignored"),
				Category: l10n.T("Configuration"),
			},
			&cli.StringFlag{
				Name:     "log-level",
				Aliases:  []string{"l"},
				Usage:    l10n.T("Log level (debug, info, warn, error)"),
				Category: l10n.T("Logging"),
			},
			&cli.StringFlag{
				Name:     "log-format",
				Usage:    l10n.T("Log format (console, text, json)"),
				Category: l10n.T("Logging"),
			},
			&cli.BoolFlag{
				Name:     "quiet",
				Aliases:  []string{"q"},
				Usage:    l10n.T("Suppress all log output"),
				Category: l10n.T("Logging"),
			},
		},
		Commands: []*cli.Command{
			playCommand(),
			probeCommand(),
		},
	}
}

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     l10n.T("Play a media file"),
		ArgsUsage: "<file or s3://bucket/key>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "sink",
				Aliases:  []string{"s"},
				Usage:    l10n.T("Presentation sink (null, snapshot, window)"),
				Category: l10n.T("Output"),
			},
			&cli.StringFlag{
				Name:     "snapshot-dir",
				Usage:    l10n.T("Directory for snapshot images"),
				Category: l10n.T("Output"),
			},
			&cli.IntFlag{
				Name:     "snapshot-every",
				Usage:    l10n.T("Save every Nth presented picture"),
				Category: l10n.T("Output"),
			},
			&cli.StringFlag{
				Name:     "summary",
				Usage:    l10n.T("Write a Markdown summary to this path"),
				Category: l10n.T("Output"),
			},
			&cli.BoolFlag{
				Name:     "loop",
				Usage:    l10n.T("Restart from the beginning at the end of media"),
				Category: l10n.T("Playback"),
			},
			&cli.Float64Flag{
				Name:     "volume",
				Usage:    l10n.T("Initial volume (0.0-1.0)"),
				Category: l10n.T("Playback"),
			},
			&cli.BoolFlag{
				Name:     "muted",
				Usage:    l10n.T("Start muted"),
				Category: l10n.T("Playback"),
			},
			&cli.DurationFlag{
				Name:     "max-time",
				Usage:    l10n.T("Stop after this much wall time (0 plays to the end)"),
				Category: l10n.T("Playback"),
			},
			&cli.BoolFlag{
				Name:     "whole",
				Usage:    l10n.T("Read the whole source before playing"),
				Category: l10n.T("Pipeline"),
			},
			&cli.Float64Flag{
				Name:     "fps",
				Usage:    l10n.T("Frame rate of the render loop"),
				Category: l10n.T("Pipeline"),
			},
			&cli.BoolFlag{
				Name:     "hwaccel",
				Usage:    l10n.T("Prefer hardware decoders"),
				Category: l10n.T("Decoder"),
			},
			&cli.BoolFlag{
				Name:     "no-transcode",
				Usage:    l10n.T("Disable the transcode fallback for unsupported codecs"),
				Category: l10n.T("Decoder"),
			},
			&cli.StringFlag{
				Name:     "ffmpeg",
				Usage:    l10n.T("Path to the ffmpeg executable"),
				Category: l10n.T("Decoder"),
			},
		},
		Action: runPlay,
	}
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     l10n.T("Show container and track information"),
		ArgsUsage: "<file or s3://bucket/key>",
		Action:    runProbe,
	}
}

// loadConfig layers defaults, the YAML file, .env files, PLAYCORE_*
// variables and finally command line flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := config.LoadDotEnv(c.StringSlice("env-file")...); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.IsSet("sink") {
		cfg.Output.Sink = c.String("sink")
	}
	if c.IsSet("snapshot-dir") {
		cfg.Output.SnapshotDir = c.String("snapshot-dir")
	}
	if c.IsSet("snapshot-every") {
		cfg.Output.SnapshotEvery = c.Int("snapshot-every")
	}
	if c.IsSet("summary") {
		cfg.Output.Summary = c.String("summary")
	}
	if c.IsSet("loop") {
		cfg.Playback.Loop = c.Bool("loop")
	}
	if c.IsSet("volume") {
		cfg.Playback.Volume = c.Float64("volume")
	}
	if c.IsSet("muted") {
		cfg.Playback.Muted = c.Bool("muted")
	}
	if c.IsSet("max-time") {
		cfg.Playback.MaxPlayTime = c.Duration("max-time")
	}
	if c.IsSet("whole") {
		cfg.Pipeline.Progressive = !c.Bool("whole")
	}
	if c.IsSet("fps") {
		cfg.Pipeline.FPS = c.Float64("fps")
	}
	if c.IsSet("hwaccel") {
		cfg.Decoder.HardwareAcceleration = c.Bool("hwaccel")
	}
	if c.IsSet("no-transcode") {
		cfg.Decoder.Transcode = !c.Bool("no-transcode")
	}
	if c.IsSet("ffmpeg") {
		cfg.Decoder.FFmpegPath = c.String("ffmpeg")
	}

	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config, quiet bool) ports.Logger {
	if quiet {
		return logger.NewNoop()
	}
	level := ports.ParseLogLevel(cfg.Log.Level)
	if cfg.Log.Format == "" || cfg.Log.Format == "console" {
		return logger.NewConsole(level)
	}
	return logger.NewLogrus(os.Stderr, level, cfg.Log.Format)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(log ports.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// sources returns the byte sources able to open location.
func sources(cfg config.Config, location string, log ports.Logger) ([]ports.ByteSource, error) {
	list := []ports.ByteSource{filesource.New(aferofs.New())}
	if strings.HasPrefix(location, "s3://") {
		src, err := s3source.New(cfg.ToS3Config(), log.WithComponent("s3"))
		if err != nil {
			return nil, err
		}
		list = append([]ports.ByteSource{src}, list...)
	}
	return list, nil
}

func locationArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.New(l10n.T("exactly one media location is required"))
	}
	return c.Args().First(), nil
}

func runPlay(c *cli.Context) error {
	location, err := locationArg(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg, c.Bool("quiet"))

	ctx, cancel := signalContext(log)
	defer cancel()

	srcs, err := sources(cfg, location, log)
	if err != nil {
		return err
	}

	service := ffmpeg.NewService(ffmpeg.Options{
		FFmpegPath: cfg.Decoder.FFmpegPath,
		Logger:     log.WithComponent("ffmpeg"),
	})
	decoder := smartdecoder.New(log.WithComponent("decoder"), smartdecoder.Backend{Name: "ffmpeg", Service: service})

	var transcoder ports.Transcoder
	if cfg.Decoder.Transcode {
		transcoder = ffmpeg.NewTranscoder(ffmpeg.TranscoderOptions{
			FFmpegPath: cfg.Decoder.FFmpegPath,
			Preset:     cfg.Decoder.Preset,
			CRF:        cfg.Decoder.CRF,
			Logger:     log.WithComponent("transcode"),
		})
	}

	fs := aferofs.New()
	out, err := newOutput(cfg, fs, log)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Deps{
		Sources:    srcs,
		Service:    decoder,
		Transcoder: transcoder,
		Sink:       out.sink,
		Device:     out.device,
		Frames:     out.frames,
		Logger:     log,
		Commands:   out.commands,
	})

	result, runErr := orch.Run(ctx, cfg.ToOrchestratorConfig(location))
	if errors.Is(runErr, sdlout.ErrClosed) {
		runErr = nil
	}

	if cfg.Output.Summary != "" {
		if err := writeSummary(cfg.Output.Summary, fs, result, decoder); err != nil {
			log.Warn("Failed to write summary: %v", err)
		} else {
			log.Info("Summary saved to %s", cfg.Output.Summary)
		}
	}
	return runErr
}

func writeSummary(path string, fs ports.FileSystem, result orchestrator.RunResult, decoder *smartdecoder.Decoder) error {
	backends := make(map[string]string)
	for _, ch := range decoder.Choices() {
		backends[ch.Codec] = ch.Backend
	}

	summary := summarizer.NewBuilder().
		WithSource(result.Location, result.Bytes, result.Progressive).
		WithMedia(result.Info).
		WithPlayback(summarizer.PlaybackInfo{
			FinalState:          result.FinalState,
			Position:            result.Position,
			Presented:           result.Stats.Presented,
			LateFrames:          result.Stats.LateFrames,
			Seeks:               result.Session.Seeks,
			DurationCorrections: result.Session.DurationCorrections,
			WallTime:            result.WallTime,
		}).
		WithDecode(summarizer.DecodeInfo{
			Strategy: result.Session.Strategy,
			Backends: backends,
			Dropped:  result.Stats.Dropped,
		}).
		Build()

	return summarizer.NewWriter(summarizer.NewMarkdownFormatter(), fs).Write(path, summary)
}

func runProbe(c *cli.Context) error {
	location, err := locationArg(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg, c.Bool("quiet"))

	ctx, cancel := signalContext(log)
	defer cancel()

	srcs, err := sources(cfg, location, log)
	if err != nil {
		return err
	}
	orch := orchestrator.New(orchestrator.Deps{Sources: srcs, Logger: log})
	info, err := orch.Probe(ctx, location, cfg.Pipeline.ChunkSize)
	if err != nil {
		return err
	}
	printInfo(c.App.Writer, info)
	return nil
}

func printInfo(w io.Writer, info pipeline.MediaInfo) {
	duration := info.Duration.Round(time.Millisecond).String()
	if info.DurationEstimated {
		duration = l10n.F("%s (estimated)", duration)
	}
	fmt.Fprintln(w, l10n.F("Format: %s", info.Format))
	fmt.Fprintln(w, l10n.F("Duration: %s", duration))
	for _, t := range info.Tracks {
		fmt.Fprintf(w, "  %s\n", t)
	}
}
