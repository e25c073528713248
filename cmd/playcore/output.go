package main

import (
	"fmt"

	"k8s.io/utils/clock"

	"github.com/user/playcore/pkg/adapters/filesink"
	"github.com/user/playcore/pkg/adapters/frameclock"
	"github.com/user/playcore/pkg/adapters/ggrenderer"
	"github.com/user/playcore/pkg/adapters/nullaudio"
	"github.com/user/playcore/pkg/adapters/nullsink"
	"github.com/user/playcore/pkg/config"
	"github.com/user/playcore/pkg/orchestrator"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// output bundles the adapters that present pictures and sound.
type output struct {
	sink     ports.PresentationSink
	device   ports.AudioDevice
	frames   orchestrator.FrameDriver
	commands <-chan pipeline.Command
}

func newOutput(cfg config.Config, fs ports.FileSystem, log ports.Logger) (*output, error) {
	switch cfg.Output.Sink {
	case config.SinkNull, "":
		return headless(cfg, nullsink.New()), nil
	case config.SinkSnapshot:
		if err := fs.MkdirAll(cfg.Output.SnapshotDir); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
		sink := filesink.New(filesink.Options{
			Dir:      cfg.Output.SnapshotDir,
			Every:    cfg.Output.SnapshotEvery,
			MaxWidth: cfg.Output.SnapshotWidth,
		}, fs, ggrenderer.New())
		return headless(cfg, sink), nil
	case config.SinkWindow:
		return newWindowOutput(cfg, log)
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Output.Sink)
	}
}

// headless plays against the wall clock without audio hardware.
func headless(cfg config.Config, sink ports.PresentationSink) *output {
	clk := clock.RealClock{}
	return &output{
		sink:   sink,
		device: nullaudio.New(clk),
		frames: frameclock.New(clk, cfg.Pipeline.FPS),
	}
}
