package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/playcore/pkg/mocks"
	"github.com/user/playcore/pkg/pipeline"
)

// buffer returns d worth of stereo audio at 48kHz starting at media time ts.
func buffer(ts, d time.Duration, released *int) *pipeline.AudioBuffer {
	frames := int(d * 48000 / time.Second)
	return pipeline.NewAudioBuffer(make([]float32, frames*2), ts, 48000, 2, func() {
		if released != nil {
			*released++
		}
	})
}

func TestPlayBuffer_BackToBack(t *testing.T) {
	dev := &mocks.AudioDevice{}
	s := NewScheduler(dev, nil)

	dev.Advance(time.Second)
	require.NoError(t, s.PlayBuffer(buffer(0, 20*time.Millisecond, nil)))
	require.NoError(t, s.PlayBuffer(buffer(20*time.Millisecond, 30*time.Millisecond, nil)))
	require.NoError(t, s.PlayBuffer(buffer(50*time.Millisecond, 20*time.Millisecond, nil)))

	calls := dev.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, time.Second, calls[0].At)
	for i := 1; i < len(calls); i++ {
		assert.Equal(t, calls[i-1].At+calls[i-1].Duration, calls[i].At, "buffer %d must start where the previous ends", i)
	}
	assert.Equal(t, 70*time.Millisecond, s.Buffered())
}

func TestPlayBuffer_AfterUnderrunStartsAtNow(t *testing.T) {
	dev := &mocks.AudioDevice{}
	s := NewScheduler(dev, nil)

	require.NoError(t, s.PlayBuffer(buffer(0, 20*time.Millisecond, nil)))
	dev.Advance(100 * time.Millisecond)
	require.NoError(t, s.PlayBuffer(buffer(20*time.Millisecond, 20*time.Millisecond, nil)))

	calls := dev.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 100*time.Millisecond, calls[1].At)
	assert.GreaterOrEqual(t, calls[1].At, calls[0].At+calls[0].Duration)
}

func TestPlayBuffer_ReleasesBuffer(t *testing.T) {
	dev := &mocks.AudioDevice{}
	s := NewScheduler(dev, nil)

	released := 0
	require.NoError(t, s.PlayBuffer(buffer(0, 20*time.Millisecond, &released)))
	assert.Equal(t, 1, released)

	dev.ScheduleErr = errors.New("device gone")
	assert.Error(t, s.PlayBuffer(buffer(0, 20*time.Millisecond, &released)))
	assert.Equal(t, 2, released)
}

func TestResetSchedule(t *testing.T) {
	dev := &mocks.AudioDevice{}
	s := NewScheduler(dev, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.PlayBuffer(buffer(0, 100*time.Millisecond, nil)))
	}
	assert.Equal(t, time.Second, s.Buffered())

	dev.Advance(50 * time.Millisecond)
	s.ResetSchedule()
	assert.Equal(t, 1, dev.FlushCalled)
	assert.Equal(t, time.Duration(0), s.Buffered())

	require.NoError(t, s.PlayBuffer(buffer(0, 100*time.Millisecond, nil)))
	calls := dev.Calls()
	assert.Equal(t, 50*time.Millisecond, calls[len(calls)-1].At)
}

func TestVolumeAndMute(t *testing.T) {
	dev := &mocks.AudioDevice{}
	s := NewScheduler(dev, nil)

	assert.Equal(t, 1.0, s.Volume())
	assert.Equal(t, 0.4, s.SetVolume(0.4))
	assert.Equal(t, 1.0, s.SetVolume(3))
	assert.Equal(t, 0.0, s.SetVolume(-1))
	s.SetVolume(0.6)

	s.Mute()
	assert.True(t, s.Muted())
	assert.Equal(t, 0.6, s.Volume(), "mute keeps the chosen volume")
	require.NoError(t, s.PlayBuffer(buffer(0, 10*time.Millisecond, nil)))

	s.SetVolume(0.8)
	s.Unmute()
	assert.False(t, s.Muted())
	require.NoError(t, s.PlayBuffer(buffer(0, 10*time.Millisecond, nil)))

	calls := dev.Calls()
	assert.Equal(t, 0.0, calls[0].Gain)
	assert.Equal(t, 0.8, calls[1].Gain)
	assert.Equal(t, []float64{0.4, 1, 0, 0.6, 0, 0.8}, dev.Gains)
}

func TestMediaTime_FollowsDeviceClock(t *testing.T) {
	dev := &mocks.AudioDevice{}
	s := NewScheduler(dev, nil)

	dev.Advance(5 * time.Second)
	s.Anchor(30 * time.Second)
	assert.Equal(t, 30*time.Second, s.MediaTime())

	dev.Advance(250 * time.Millisecond)
	assert.Equal(t, 30250*time.Millisecond, s.MediaTime())

	s.Pause()
	assert.True(t, dev.Suspended())
	dev.Advance(time.Second)
	assert.Equal(t, 30250*time.Millisecond, s.MediaTime(), "clock stops while paused")

	s.Resume()
	dev.Advance(time.Second)
	assert.Equal(t, 31250*time.Millisecond, s.MediaTime())
	assert.Equal(t, 6250*time.Millisecond, s.CurrentTime())
}
