//go:build !sdl

package main

import (
	"errors"

	"github.com/user/playcore/pkg/config"
	"github.com/user/playcore/pkg/ports"
)

func newWindowOutput(cfg config.Config, log ports.Logger) (*output, error) {
	return nil, errors.New("window output is not available in this build, rebuild with -tags sdl")
}
