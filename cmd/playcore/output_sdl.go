//go:build sdl

package main

import (
	"github.com/user/playcore/pkg/adapters/sdlout"
	"github.com/user/playcore/pkg/config"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

func newWindowOutput(cfg config.Config, log ports.Logger) (*output, error) {
	device, err := sdlout.NewAudioDevice(log.WithComponent("audio"))
	if err != nil {
		return nil, err
	}
	commands := make(chan pipeline.Command, 8)
	window := sdlout.NewWindow(sdlout.WindowOptions{
		FPS:      cfg.Pipeline.FPS,
		Commands: commands,
		Logger:   log.WithComponent("window"),
	})
	return &output{
		sink:     window,
		device:   device,
		frames:   window,
		commands: commands,
	}, nil
}
