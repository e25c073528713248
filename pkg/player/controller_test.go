package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/user/playcore/pkg/decode"
	"github.com/user/playcore/pkg/mocks"
	"github.com/user/playcore/pkg/pipeline"
)

const frame = 40 * time.Millisecond

type harness struct {
	svc    *mocks.DecodeService
	trans  *mocks.Transcoder
	sink   *mocks.PresentationSink
	dev    *mocks.AudioDevice
	frames *mocks.FrameScheduler
	events *mocks.EventSink
	clk    *testingclock.FakeClock
	c      *Controller
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		svc:    &mocks.DecodeService{},
		trans:  &mocks.Transcoder{},
		sink:   &mocks.PresentationSink{},
		dev:    &mocks.AudioDevice{},
		frames: &mocks.FrameScheduler{},
		events: &mocks.EventSink{},
		clk:    testingclock.NewFakeClock(time.Unix(0, 0)),
	}
	opts := Options{
		Service:    h.svc,
		Transcoder: h.trans,
		Sink:       h.sink,
		Device:     h.dev,
		Frames:     h.frames,
		Events:     h.events,
		Decoder:    pipeline.DefaultDecoderOptions(),
		SeekClock:  h.clk,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	h.c = c
	t.Cleanup(func() { _ = c.Dispose() })
	return h
}

func mp4Source(t *testing.T, seconds int) mocks.MP4Fixture {
	t.Helper()
	fx, err := mocks.BuildFragmentedMP4(mocks.MP4Options{Seconds: seconds})
	require.NoError(t, err)
	return fx
}

func (h *harness) load(t *testing.T, seconds int) {
	t.Helper()
	require.NoError(t, h.c.Load(context.Background(), mp4Source(t, seconds).Data))
}

// step runs one frame and advances the device clock by one frame period.
func (h *harness) step() int {
	n := h.frames.Step()
	h.dev.Advance(frame)
	return n
}

// runUntil steps frames until cond holds or max frames ran.
func (h *harness) runUntil(max int, cond func() bool) bool {
	for i := 0; i < max; i++ {
		if cond() {
			return true
		}
		h.step()
	}
	return cond()
}

func states(s ...pipeline.PlayerState) []pipeline.PlayerState { return s }

func TestNew_RequiresSink(t *testing.T) {
	_, err := New(Options{Service: &mocks.DecodeService{}, Device: &mocks.AudioDevice{}, Frames: &mocks.FrameScheduler{}})
	var ierr *pipeline.InitializationError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "presentation sink", ierr.Component)

	_, err = New(Options{Sink: &mocks.PresentationSink{}, Device: &mocks.AudioDevice{}, Frames: &mocks.FrameScheduler{}})
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "decoder", ierr.Component)
}

func TestScenario_LoadPlaySeekPause(t *testing.T) {
	h := newHarness(t)
	h.load(t, 120)
	assert.Equal(t, states(pipeline.StateLoading, pipeline.StateReady), h.events.States())
	assert.Equal(t, 120*time.Second, h.c.Duration())
	assert.Len(t, h.c.Info().Tracks, 2)

	require.NoError(t, h.c.Play())
	assert.Equal(t, pipeline.StatePlaying, h.c.State())
	for i := 0; i < 5; i++ {
		h.step()
	}

	target, err := h.c.SeekNow(200 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, target)
	assert.Equal(t, pipeline.StatePlaying, h.c.State())
	assert.LessOrEqual(t, h.c.CurrentTime(), 120*time.Second)
	assert.GreaterOrEqual(t, h.c.CurrentTime(), 119*time.Second)

	require.NoError(t, h.c.Pause())
	target, err = h.c.SeekNow(-5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), target)
	assert.Equal(t, pipeline.StatePaused, h.c.State())
	assert.Equal(t, time.Duration(0), h.c.CurrentTime())

	assert.Equal(t, states(
		pipeline.StateLoading, pipeline.StateReady,
		pipeline.StatePlaying,
		pipeline.StateSeeking, pipeline.StatePlaying,
		pipeline.StatePaused,
		pipeline.StateSeeking, pipeline.StatePaused,
	), h.events.States())
}

func TestPlayback_PresentsPicturesInOrder(t *testing.T) {
	h := newHarness(t)
	h.load(t, 3)
	require.NoError(t, h.c.Play())

	for i := 0; i < 30; i++ {
		h.step()
	}

	ts := h.sink.Timestamps()
	require.NotEmpty(t, ts)
	assert.Equal(t, time.Duration(0), ts[0])
	for i := 1; i < len(ts); i++ {
		assert.Greater(t, ts[i], ts[i-1])
	}
	assert.Equal(t, ts[len(ts)-1], h.c.CurrentTime())
	assert.NotEmpty(t, h.events.Kind(pipeline.EventTimeUpdate))
	assert.NotEmpty(t, h.dev.Calls(), "audio must reach the device")

	st := h.c.Stats()
	assert.Equal(t, len(ts), st.Presented)
	assert.LessOrEqual(t, st.VideoQueued, st.VideoHighWater)
	assert.LessOrEqual(t, st.AudioQueued, st.AudioHighWater)
}

func TestPlayback_SkipsLatePictures(t *testing.T) {
	h := newHarness(t)
	h.load(t, 3)
	require.NoError(t, h.c.Play())
	h.step()

	// The clock jumps half a second between two frames.
	h.dev.Advance(500 * time.Millisecond)
	h.step()

	assert.Greater(t, h.c.Stats().LateFrames, 0)
	assert.Greater(t, h.c.CurrentTime(), frame)
}

func TestEndOfMedia_StopsInReady(t *testing.T) {
	h := newHarness(t)
	h.load(t, 2)
	require.NoError(t, h.c.Play())

	require.True(t, h.runUntil(500, func() bool { return h.c.State() == pipeline.StateReady }))
	assert.Equal(t, 2*time.Second, h.c.CurrentTime())
	assert.Equal(t, 0, h.frames.Pending(), "tick loop must stop")

	// Playing again restarts from the beginning.
	h.events.Reset()
	require.NoError(t, h.c.Play())
	assert.Equal(t, states(pipeline.StatePlaying, pipeline.StateSeeking, pipeline.StatePlaying), h.events.States())
	assert.Equal(t, time.Duration(0), h.c.CurrentTime())
	assert.Equal(t, 1, h.frames.Pending())
}

func TestEndOfMedia_DecoderHoldsBackLastOutput(t *testing.T) {
	h := newHarness(t)
	h.svc.Latency = 1
	h.load(t, 2)
	require.NoError(t, h.c.Play())

	// The held-back samples only come out once the decoders are drained,
	// which happens off the tick.
	require.Eventually(t, func() bool {
		h.step()
		return h.c.State() == pipeline.StateReady
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 2*time.Second, h.c.CurrentTime())
	assert.Equal(t, 0, h.c.Stats().InFlight)
	assert.Equal(t, 0, h.frames.Pending(), "tick loop must stop")

	ts := h.sink.Timestamps()
	require.NotEmpty(t, ts)
	assert.Equal(t, 2*time.Second-frame, ts[len(ts)-1], "last picture must be presented")
}

func TestEndOfMedia_Loops(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Loop = true })
	h.load(t, 2)
	require.NoError(t, h.c.Play())

	looped := func() bool {
		for _, s := range h.events.States() {
			if s == pipeline.StateSeeking {
				return true
			}
		}
		return false
	}
	require.True(t, h.runUntil(500, looped))
	assert.Equal(t, pipeline.StatePlaying, h.c.State())
	assert.Less(t, h.c.CurrentTime(), time.Second)
	assert.NotContains(t, h.events.States(), pipeline.StateReady)
	assert.Equal(t, 1, h.c.Session().Seeks)
}

func TestSeek_Debounced(t *testing.T) {
	h := newHarness(t)
	h.load(t, 10)
	h.events.Reset()

	for _, s := range []time.Duration{3 * time.Second, 5 * time.Second, 7 * time.Second} {
		_, err := h.c.Seek(s)
		require.NoError(t, err)
	}
	assert.True(t, h.c.SeekPending())
	assert.Empty(t, h.events.States())

	h.clk.Step(150 * time.Millisecond)
	require.Eventually(t, func() bool { return len(h.events.States()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, states(pipeline.StateSeeking, pipeline.StateReady), h.events.States())
	assert.Equal(t, 7*time.Second, h.c.CurrentTime())
	assert.Equal(t, 1, h.c.Session().Seeks)
	assert.False(t, h.c.SeekPending())
}

func TestSeekRelative(t *testing.T) {
	h := newHarness(t)
	h.load(t, 10)
	_, err := h.c.SeekNow(4 * time.Second)
	require.NoError(t, err)

	target, err := h.c.SeekRelative(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, target)
	target, err = h.c.SeekRelative(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 8*time.Second, target)

	h.c.CancelSeek()
	assert.False(t, h.c.SeekPending())
}

func TestCommands_InvalidState(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.c.Play(), pipeline.ErrInvalidState)
	_, err := h.c.Seek(time.Second)
	assert.ErrorIs(t, err, pipeline.ErrInvalidState)

	h.load(t, 1)
	assert.ErrorIs(t, h.c.Pause(), pipeline.ErrInvalidState)
	assert.ErrorIs(t, h.c.SelectTrack(99), pipeline.ErrNoTrack)
}

func TestVolumeEvents(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetVolume(1.5))
	require.NoError(t, h.c.SetVolume(0.3))
	require.NoError(t, h.c.Mute())
	require.NoError(t, h.c.Unmute())

	evs := h.events.Kind(pipeline.EventVolumeChange)
	require.Len(t, evs, 4)
	assert.Equal(t, 1.0, evs[0].Volume)
	assert.Equal(t, 0.3, evs[1].Volume)
	assert.True(t, evs[2].Muted)
	assert.Equal(t, 0.3, evs[2].Volume, "mute keeps the volume")
	assert.False(t, evs[3].Muted)
	assert.Equal(t, 0.3, h.c.Volume())
}

func TestLoad_FormatErrorThenRecover(t *testing.T) {
	h := newHarness(t)

	err := h.c.Load(context.Background(), []byte("definitely not a media container"))
	require.Error(t, err)
	assert.True(t, pipeline.IsFormatError(err))
	assert.Equal(t, pipeline.StateError, h.c.State())
	assert.Len(t, h.events.Kind(pipeline.EventError), 1)
	assert.ErrorIs(t, h.c.Play(), pipeline.ErrInvalidState)

	h.load(t, 1)
	assert.Equal(t, pipeline.StateReady, h.c.State())
	assert.NoError(t, h.c.Err())
}

func TestLoad_TranscodeFallback(t *testing.T) {
	h := newHarness(t)
	h.svc.Supported = map[string]bool{"h264": true, "aac": true}
	h.trans.Avail = true
	converted := mp4Source(t, 2).Data
	h.trans.TranscodeFunc = func(ctx context.Context, src []byte) ([]byte, error) { return converted, nil }

	webm, err := mocks.BuildWebM(2)
	require.NoError(t, err)

	require.NoError(t, h.c.Load(context.Background(), webm))
	assert.Equal(t, 1, h.trans.Calls())
	assert.Equal(t, decode.StrategyTranscode, h.c.Session().Strategy)
	assert.Equal(t, pipeline.FormatMP4, h.c.Info().Format)
	assert.Equal(t, pipeline.StateReady, h.c.State())

	// Progressive loading cannot transcode.
	err = h.c.Open(context.Background(), webm)
	assert.ErrorIs(t, err, pipeline.ErrNeedsWholeSource)
}

func TestLoad_UnsupportedWithoutTranscoder(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Transcoder = nil })
	h.svc.Supported = map[string]bool{"h264": true}

	err := h.c.Load(context.Background(), mp4Source(t, 1).Data)
	assert.True(t, pipeline.IsFormatError(err))
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedCodec)
	assert.Equal(t, pipeline.StateError, h.c.State())
}

func TestProgressive_BuffersAndCorrectsDuration(t *testing.T) {
	h := newHarness(t)
	fx := mp4Source(t, 4)

	require.NoError(t, h.c.Open(context.Background(), fx.Data[:fx.SecondEnd[0]]))
	info := h.c.Info()
	assert.True(t, info.DurationEstimated)
	assert.Equal(t, time.Second, info.Duration)

	require.NoError(t, h.c.Play())
	require.True(t, h.runUntil(200, func() bool { return h.c.State() == pipeline.StateBuffering }),
		"an estimated duration must not end playback")
	paused := h.c.CurrentTime()
	h.step()
	assert.Equal(t, paused, h.c.CurrentTime(), "clock holds while buffering")

	require.NoError(t, h.c.Append(fx.Data[fx.SecondEnd[0]:]))
	assert.Equal(t, 4*time.Second, h.c.Duration())
	require.True(t, h.runUntil(10, func() bool { return h.c.State() == pipeline.StatePlaying }))

	require.NoError(t, h.c.EndOfData())
	assert.False(t, h.c.Info().DurationEstimated)
	durations := h.events.Kind(pipeline.EventDurationChange)
	require.Len(t, durations, 3)
	assert.Equal(t, 4*time.Second, durations[2].Duration)

	require.True(t, h.runUntil(500, func() bool { return h.c.State() == pipeline.StateReady }))
	assert.Equal(t, 4*time.Second, h.c.CurrentTime())
	assert.Equal(t, 2, h.c.Session().DurationCorrections)
}

func TestDecodeErrors_AreNotFatal(t *testing.T) {
	h := newHarness(t)
	h.svc.FailPTS = map[time.Duration]bool{40 * time.Millisecond: true, 80 * time.Millisecond: true}
	h.load(t, 2)
	require.NoError(t, h.c.Play())

	for i := 0; i < 20; i++ {
		h.step()
	}
	assert.Equal(t, pipeline.StatePlaying, h.c.State())
	// frame and audio buffer at each failing timestamp
	assert.Equal(t, 4, h.c.Stats().Dropped)
	assert.Empty(t, h.events.Kind(pipeline.EventError))
}

func TestSeekFailure_RollsBack(t *testing.T) {
	h := newHarness(t)
	h.load(t, 10)
	require.NoError(t, h.c.Play())
	h.step()

	h.svc.FailOpens = 1
	_, err := h.c.SeekNow(5 * time.Second)
	require.NoError(t, err)

	assert.Equal(t, pipeline.StatePlaying, h.c.State())
	evs := h.events.Kind(pipeline.EventError)
	require.Len(t, evs, 1)
	var serr *pipeline.SeekError
	require.ErrorAs(t, evs[0].Err, &serr)
	assert.True(t, serr.RolledBack)
	assert.Equal(t, 5*time.Second, serr.Target)

	h.step()
	assert.Equal(t, pipeline.StatePlaying, h.c.State())
}

func TestSeekFailure_WithoutRollbackIsFatal(t *testing.T) {
	h := newHarness(t)
	h.load(t, 10)
	h.svc.OpenErr = errors.New("device lost")

	_, err := h.c.SeekNow(5 * time.Second)
	require.NoError(t, err)

	assert.Equal(t, pipeline.StateError, h.c.State())
	var serr *pipeline.SeekError
	require.ErrorAs(t, h.c.Err(), &serr)
	assert.False(t, serr.RolledBack)
	assert.Len(t, h.events.Kind(pipeline.EventError), 1)
}

func TestDispose_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.load(t, 3)
	require.NoError(t, h.c.Play())
	for i := 0; i < 10; i++ {
		h.step()
	}

	require.NoError(t, h.c.Dispose())
	require.NoError(t, h.c.Dispose())

	assert.Equal(t, 1, h.sink.CloseCalled)
	assert.Equal(t, 1, h.dev.CloseCalled)
	assert.Equal(t, h.svc.Produced(), h.svc.Released(), "every decoded unit is released exactly once")
	assert.Equal(t, 0, h.frames.Pending())

	assert.ErrorIs(t, h.c.Play(), pipeline.ErrDisposed)
	assert.ErrorIs(t, h.c.Load(context.Background(), nil), pipeline.ErrDisposed)
	assert.ErrorIs(t, h.c.SetVolume(1), pipeline.ErrDisposed)
}

func TestReset_ReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.load(t, 2)
	require.NoError(t, h.c.Play())
	h.step()

	require.NoError(t, h.c.Reset())
	assert.Equal(t, pipeline.StateIdle, h.c.State())
	assert.Equal(t, time.Duration(0), h.c.Duration())
	assert.Equal(t, 0, h.frames.Pending())
	for _, s := range h.svc.Sessions {
		assert.Equal(t, 1, s.CloseCalled)
	}
}

func TestSelectTrack_Resynchronizes(t *testing.T) {
	h := newHarness(t)
	h.load(t, 3)
	require.NoError(t, h.c.Play())
	for i := 0; i < 30; i++ {
		h.step()
	}
	h.events.Reset()
	opened := h.svc.OpenCalled

	require.NoError(t, h.c.SelectTrack(2))
	assert.Equal(t, states(pipeline.StateSeeking, pipeline.StatePlaying), h.events.States())
	assert.Equal(t, opened+2, h.svc.OpenCalled)
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t)
	var got []pipeline.Event
	unsub := h.c.Subscribe(func(ev pipeline.Event) { got = append(got, ev) }, pipeline.EventDurationChange)

	h.load(t, 1)
	require.Len(t, got, 1)
	assert.Equal(t, time.Second, got[0].Duration)

	unsub()
	h.load(t, 2)
	assert.Len(t, got, 1)
	assert.NoError(t, h.c.Err())
}

func TestPlayPause_DuringSeekApplyAfterwards(t *testing.T) {
	h := newHarness(t)
	h.load(t, 10)
	require.NoError(t, h.c.Play())
	h.step()

	// Toggle while the seek executes.
	var toggleErr error
	toggle := h.c.Pause
	unsub := h.c.Subscribe(func(ev pipeline.Event) {
		if ev.NewState == pipeline.StateSeeking {
			toggleErr = toggle()
		}
	}, pipeline.EventStateChange)
	defer unsub()

	_, err := h.c.SeekNow(5 * time.Second)
	require.NoError(t, err)
	require.NoError(t, toggleErr)
	assert.Equal(t, pipeline.StatePaused, h.c.State())
	assert.Equal(t, 0, h.frames.Pending(), "paused after the seek")

	toggle = h.c.Play
	_, err = h.c.SeekNow(2 * time.Second)
	require.NoError(t, err)
	require.NoError(t, toggleErr)
	assert.Equal(t, pipeline.StatePlaying, h.c.State())
	assert.Equal(t, 1, h.frames.Pending())

	// Without a toggle the pre-seek state is restored.
	toggle = func() error { return nil }
	_, err = h.c.SeekNow(3 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatePlaying, h.c.State())
}
