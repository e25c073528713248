package orchestrator

import (
	"errors"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/player"
)

const volumeStep = 0.1

// apply runs an interactive command. Commands that are not valid in the
// current state are logged and ignored.
func (o *Orchestrator) apply(ctrl *player.Controller, cmd pipeline.Command, cfg Config, loop *bool) {
	var err error
	switch cmd {
	case pipeline.CommandTogglePause:
		if st := ctrl.State(); st == pipeline.StatePaused || st == pipeline.StateReady {
			err = ctrl.Play()
		} else {
			err = ctrl.Pause()
		}
	case pipeline.CommandSeekBack:
		_, err = ctrl.SeekRelative(-cfg.ShortSeek)
	case pipeline.CommandSeekForward:
		_, err = ctrl.SeekRelative(cfg.ShortSeek)
	case pipeline.CommandSeekBackLong:
		_, err = ctrl.SeekRelative(-cfg.LongSeek)
	case pipeline.CommandSeekForwardLong:
		_, err = ctrl.SeekRelative(cfg.LongSeek)
	case pipeline.CommandVolumeUp:
		err = ctrl.SetVolume(min(ctrl.Volume()+volumeStep, 1))
	case pipeline.CommandVolumeDown:
		err = ctrl.SetVolume(max(ctrl.Volume()-volumeStep, 0))
	case pipeline.CommandToggleMute:
		if ctrl.Muted() {
			err = ctrl.Unmute()
		} else {
			err = ctrl.Mute()
		}
	case pipeline.CommandToggleLoop:
		*loop = !*loop
		ctrl.SetLoop(*loop)
	default:
		err = errors.New("unknown command")
	}
	if err != nil {
		o.logger.Debug("Command %s ignored: %v", cmd, err)
		return
	}
	o.logger.Debug("Command %s", cmd)
}
