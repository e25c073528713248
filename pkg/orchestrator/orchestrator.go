// Package orchestrator wires a byte source, the playback controller and the
// host frame driver into a single playback run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/demux"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/player"
	"github.com/user/playcore/pkg/ports"
)

// ErrNoSource is returned when no byte source handles a location.
var ErrNoSource = errors.New("no source handles location")

// Config contains all configuration for a playback run.
type Config struct {
	Location string

	// Playback
	Autoplay  bool
	Loop      bool
	Volume    float64
	Muted     bool
	SeekDelay time.Duration
	ShortSeek time.Duration
	LongSeek  time.Duration

	// Pipeline
	Decoder          pipeline.DecoderOptions
	Queues           pipeline.QueueConfig
	MaxCyclesPerTick int

	// Delivery. A progressive run starts playing once the header has
	// arrived and feeds the rest while playing.
	Progressive bool
	ChunkSize   int

	// MaxPlayTime stops the run after this much wall time. Zero plays to the end.
	MaxPlayTime time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Autoplay:         true,
		Volume:           1.0,
		SeekDelay:        150 * time.Millisecond,
		ShortSeek:        5 * time.Second,
		LongSeek:         30 * time.Second,
		Decoder:          pipeline.DefaultDecoderOptions(),
		Queues:           pipeline.DefaultQueueConfig(),
		MaxCyclesPerTick: player.DefaultMaxCyclesPerTick,
		Progressive:      true,
		ChunkSize:        256 * 1024,
	}
}

// FrameDriver is a FrameScheduler that runs its own frame loop.
type FrameDriver interface {
	ports.FrameScheduler
	Run(ctx context.Context) error
}

// durationSetter is implemented by sinks that draw a progress bar.
type durationSetter interface {
	SetDuration(d time.Duration)
}

// Deps holds the adapters used by the Orchestrator.
type Deps struct {
	Sources    []ports.ByteSource
	Service    ports.DecodeService
	Transcoder ports.Transcoder // optional
	Sink       ports.PresentationSink
	Device     ports.AudioDevice
	Frames     FrameDriver
	Clock      clock.WithDelayedExecution // nil uses the real clock
	Logger     ports.Logger

	// Commands delivers interactive playback commands. Optional.
	Commands <-chan pipeline.Command
}

// Orchestrator coordinates a playback run.
type Orchestrator struct {
	deps   Deps
	clock  clock.WithDelayedExecution
	logger ports.Logger
}

// New creates a new Orchestrator.
func New(deps Deps) *Orchestrator {
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	log := logger.OrNoop(deps.Logger)
	return &Orchestrator{deps: deps, clock: clk, logger: log}
}

// RunResult contains the results of a playback run for summary generation.
type RunResult struct {
	Location    string
	Bytes       int64 // -1 when the source size is unknown
	Progressive bool

	Info        pipeline.MediaInfo
	FinalState  pipeline.PlayerState
	Position    time.Duration
	Stats       pipeline.BufferStats
	Session     player.Session
	WallTime    time.Duration
	Interrupted bool
}

// Run loads the source, plays it until end of media, MaxPlayTime or
// cancellation of ctx, and reports what happened.
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (RunResult, error) {
	start := o.clock.Now()
	result := RunResult{Location: cfg.Location, Bytes: -1}

	rc, size, err := o.open(ctx, cfg.Location)
	if err != nil {
		return result, err
	}
	defer rc.Close()
	result.Bytes = size

	ctrl, err := player.New(player.Options{
		Service:          o.deps.Service,
		Transcoder:       o.deps.Transcoder,
		Sink:             o.deps.Sink,
		Device:           o.deps.Device,
		Frames:           o.deps.Frames,
		Logger:           o.logger.WithComponent("player"),
		Decoder:          cfg.Decoder,
		Queues:           cfg.Queues,
		MaxCyclesPerTick: cfg.MaxCyclesPerTick,
		SeekDelay:        cfg.SeekDelay,
		SeekClock:        o.clock,
		Loop:             cfg.Loop,
	})
	if err != nil {
		return result, err
	}
	defer func() {
		if err := ctrl.Dispose(); err != nil {
			o.logger.Warn("Dispose failed: %v", err)
		}
	}()

	done := make(chan error, 1)
	unsubscribe := ctrl.Subscribe(func(ev pipeline.Event) {
		var outcome error
		switch {
		case ev.Kind == pipeline.EventError:
			outcome = ev.Err
		case ev.Kind == pipeline.EventStateChange && ev.OldState.Running() && ev.NewState == pipeline.StateReady:
			outcome = nil
		default:
			return
		}
		select {
		case done <- outcome:
		default:
		}
	}, pipeline.EventStateChange, pipeline.EventError)
	defer unsubscribe()

	if ds, ok := o.deps.Sink.(durationSetter); ok {
		defer ctrl.Subscribe(func(ev pipeline.Event) {
			ds.SetDuration(ev.Duration)
		}, pipeline.EventDurationChange)()
	}

	stream, err := o.load(ctx, ctrl, rc, cfg)
	if err != nil {
		o.logger.Error("Failed to load %s: %v", cfg.Location, err)
		return o.collect(result, ctrl, start), err
	}
	result.Progressive = stream != nil
	// A failed Open before a whole-source Load leaves a stale error behind.
	select {
	case <-done:
	default:
	}

	if err := ctrl.SetVolume(cfg.Volume); err != nil {
		return o.collect(result, ctrl, start), err
	}
	if cfg.Muted {
		_ = ctrl.Mute()
	}

	if !cfg.Autoplay {
		if stream != nil {
			if err := stream(ctx); err != nil {
				return o.collect(result, ctrl, start), err
			}
		}
		return o.collect(result, ctrl, start), nil
	}

	o.logger.Info("Playing %s", cfg.Location)
	if err := ctrl.Play(); err != nil {
		return o.collect(result, ctrl, start), fmt.Errorf("play: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return ignoreCanceled(o.deps.Frames.Run(gctx))
	})
	if stream != nil {
		g.Go(func() error {
			return ignoreCanceled(stream(gctx))
		})
	}
	g.Go(func() error {
		defer cancel()
		var timeout <-chan time.Time
		if cfg.MaxPlayTime > 0 {
			timeout = o.clock.After(cfg.MaxPlayTime)
		}
		loop := cfg.Loop
		for {
			select {
			case err := <-done:
				return err
			case <-timeout:
				o.logger.Info("Play time limit of %v reached", cfg.MaxPlayTime)
				return nil
			case <-gctx.Done():
				return nil
			case cmd := <-o.deps.Commands:
				o.apply(ctrl, cmd, cfg, &loop)
			}
		}
	})

	err = g.Wait()
	result = o.collect(result, ctrl, start)
	if ctx.Err() != nil {
		result.Interrupted = true
		o.logger.Info("Interrupted, shutting down...")
	}
	if err != nil {
		return result, err
	}
	o.logger.Info("Finished at %v of %v", result.Position, result.Info.Duration)
	return result, nil
}

// Probe reads just enough of the source to report its MediaInfo.
func (o *Orchestrator) Probe(ctx context.Context, location string, chunkSize int) (pipeline.MediaInfo, error) {
	rc, _, err := o.open(ctx, location)
	if err != nil {
		return pipeline.MediaInfo{}, err
	}
	defer rc.Close()

	prefix, eof, err := readHeader(ctx, rc, chunkSize)
	if err != nil {
		return pipeline.MediaInfo{}, err
	}

	dmx := demux.New(o.logger.WithComponent("demux"))
	defer dmx.Close()
	info, err := dmx.Open(prefix)
	if err != nil {
		return info, err
	}
	if eof {
		info, _, err = dmx.Finish()
	}
	return info, err
}

// open picks the first byte source that handles location.
func (o *Orchestrator) open(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	for _, src := range o.deps.Sources {
		if !src.Handles(location) {
			continue
		}
		rc, size, err := src.Open(ctx, location)
		if err != nil {
			return nil, -1, fmt.Errorf("open %s: %w", location, err)
		}
		o.logger.Debug("Opened %s (%d bytes)", location, size)
		return rc, size, nil
	}
	return nil, -1, fmt.Errorf("%w: %s", ErrNoSource, location)
}

// load hands the source to the controller. For a progressive run it
// returns the function that feeds the remaining bytes, or nil when the
// whole source has already been loaded.
func (o *Orchestrator) load(ctx context.Context, ctrl *player.Controller, rc io.Reader, cfg Config) (func(context.Context) error, error) {
	if !cfg.Progressive {
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
		return nil, ctrl.Load(ctx, data)
	}

	prefix, eof, err := readHeader(ctx, rc, cfg.ChunkSize)
	if err != nil {
		return nil, err
	}
	if eof {
		return nil, ctrl.Load(ctx, prefix)
	}

	err = ctrl.Open(ctx, prefix)
	if errors.Is(err, pipeline.ErrNeedsWholeSource) {
		o.logger.Info("Source needs transcoding, reading it completely")
		rest, rerr := io.ReadAll(rc)
		if rerr != nil {
			return nil, fmt.Errorf("read source: %w", rerr)
		}
		return nil, ctrl.Load(ctx, append(prefix, rest...))
	}
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		return feed(ctx, ctrl, rc, cfg.ChunkSize)
	}, nil
}

// feed appends the rest of the source chunk by chunk and ends the data.
func feed(ctx context.Context, ctrl *player.Controller, rc io.Reader, chunkSize int) error {
	buf := make([]byte, chunkSizeOrDefault(chunkSize))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if aerr := ctrl.Append(chunk); aerr != nil {
				return fmt.Errorf("append: %w", aerr)
			}
		}
		if errors.Is(err, io.EOF) {
			return ctrl.EndOfData()
		}
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
	}
}

// readHeader reads until the demuxer can open the prefix, the prefix is
// known to be invalid, or the source ends.
func readHeader(ctx context.Context, rc io.Reader, chunkSize int) (prefix []byte, eof bool, err error) {
	buf := make([]byte, chunkSizeOrDefault(chunkSize))
	for {
		if err := ctx.Err(); err != nil {
			return prefix, false, err
		}
		n, rerr := rc.Read(buf)
		prefix = append(prefix, buf[:n]...)
		if errors.Is(rerr, io.EOF) {
			return prefix, true, nil
		}
		if rerr != nil {
			return prefix, false, fmt.Errorf("read source: %w", rerr)
		}
		if n == 0 {
			continue
		}
		// A prefix that cannot be parsed is handed on as is; opening it
		// reports the error.
		if ready, err := demux.HeaderReady(prefix); ready || err != nil {
			return prefix, false, nil
		}
	}
}

func (o *Orchestrator) collect(result RunResult, ctrl *player.Controller, start time.Time) RunResult {
	result.Info = ctrl.Info()
	result.FinalState = ctrl.State()
	result.Position = ctrl.CurrentTime()
	result.Stats = ctrl.Stats()
	result.Session = ctrl.Session()
	result.WallTime = o.clock.Since(start)
	return result
}

func chunkSizeOrDefault(n int) int {
	if n <= 0 {
		return 256 * 1024
	}
	return n
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
