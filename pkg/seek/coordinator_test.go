package seek

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/user/playcore/pkg/pipeline"
)

type recordingTarget struct {
	mu        sync.Mutex
	calls     []string
	positions []time.Duration
	completed []time.Duration
	aborted   []*pipeline.SeekError
	prior     pipeline.PlayerState

	resetErr    error
	reconfigErr error

	active    atomic.Int32
	maxActive atomic.Int32
	hold      time.Duration
}

func (r *recordingTarget) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingTarget) BeginSeek() pipeline.PlayerState {
	n := r.active.Add(1)
	for {
		m := r.maxActive.Load()
		if n <= m || r.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	r.record("begin")
	return r.prior
}

func (r *recordingTarget) ResetPipeline() error {
	r.record("reset")
	return r.resetErr
}

func (r *recordingTarget) Reposition(t time.Duration) (time.Duration, error) {
	r.record("reposition")
	if r.hold > 0 {
		time.Sleep(r.hold)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, t)
	// keyframes every 2s
	return t - t%(2*time.Second), nil
}

func (r *recordingTarget) Reconfigure() error {
	r.record("reconfigure")
	return r.reconfigErr
}

func (r *recordingTarget) CompleteSeek(prior pipeline.PlayerState, actual time.Duration) {
	r.record("complete")
	r.mu.Lock()
	r.completed = append(r.completed, actual)
	r.mu.Unlock()
	r.active.Add(-1)
}

func (r *recordingTarget) AbortSeek(prior pipeline.PlayerState, err *pipeline.SeekError) {
	r.record("abort")
	r.mu.Lock()
	r.aborted = append(r.aborted, err)
	r.mu.Unlock()
	r.active.Add(-1)
}

func (r *recordingTarget) Positions() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.positions...)
}

func (r *recordingTarget) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestCoordinator(target Target) (*Coordinator, *testingclock.FakeClock) {
	clk := testingclock.NewFakeClock(time.Unix(0, 0))
	c := NewCoordinator(target, Options{Clock: clk, Delay: 150 * time.Millisecond})
	c.SetDuration(120 * time.Second)
	return c, clk
}

func TestSeek_ClampsTarget(t *testing.T) {
	target := &recordingTarget{prior: pipeline.StatePlaying}
	c, _ := newTestCoordinator(target)

	req := c.Seek(200*time.Second, true)
	assert.Equal(t, 120*time.Second, req.Target)

	req = c.Seek(-5*time.Second, true)
	assert.Equal(t, time.Duration(0), req.Target)

	assert.Equal(t, []time.Duration{120 * time.Second, 0}, target.Positions())
}

func TestSeek_ExecutionProtocol(t *testing.T) {
	target := &recordingTarget{prior: pipeline.StatePaused}
	c, _ := newTestCoordinator(target)

	c.Seek(31*time.Second, true)
	assert.Equal(t, []string{"begin", "reset", "reposition", "reconfigure", "complete"}, target.Calls())
	assert.Equal(t, []time.Duration{30 * time.Second}, target.completed)
	assert.Equal(t, 1, c.Executed())

	// The reached time becomes the base for relative seeks.
	c.SeekRelative(5*time.Second, true)
	assert.Equal(t, 35*time.Second, target.Positions()[1])
}

func TestSeek_Debounce(t *testing.T) {
	target := &recordingTarget{prior: pipeline.StatePlaying}
	c, clk := newTestCoordinator(target)

	c.Seek(10*time.Second, false)
	c.Seek(20*time.Second, false)
	c.Seek(30*time.Second, false)
	assert.True(t, c.IsPending())

	clk.Step(149 * time.Millisecond)
	assert.Empty(t, target.Positions())

	clk.Step(time.Millisecond)
	require.Eventually(t, func() bool { return c.Executed() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []time.Duration{30 * time.Second}, target.Positions())
	assert.False(t, c.IsPending())

	clk.Step(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, c.Executed(), "superseded timers must not fire")
}

func TestSeek_EachRequestRestartsWindow(t *testing.T) {
	target := &recordingTarget{}
	c, clk := newTestCoordinator(target)

	c.Seek(10*time.Second, false)
	clk.Step(100 * time.Millisecond)
	c.Seek(20*time.Second, false)
	clk.Step(100 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, target.Positions())

	clk.Step(50 * time.Millisecond)
	require.Eventually(t, func() bool { return c.Executed() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []time.Duration{20 * time.Second}, target.Positions())
}

func TestSeek_ImmediateBypassesWindow(t *testing.T) {
	target := &recordingTarget{}
	c, clk := newTestCoordinator(target)

	c.Seek(10*time.Second, false)
	c.Seek(50*time.Second, true)
	assert.Equal(t, []time.Duration{50 * time.Second}, target.Positions())
	assert.False(t, c.IsPending())

	clk.Step(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, c.Executed())
}

func TestCancel(t *testing.T) {
	target := &recordingTarget{}
	c, clk := newTestCoordinator(target)

	c.Seek(10*time.Second, false)
	c.Cancel()
	assert.False(t, c.IsPending())

	clk.Step(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, c.Executed())
}

func TestCancel_DoesNotAffectExecutingSeek(t *testing.T) {
	target := &recordingTarget{hold: 50 * time.Millisecond}
	c, _ := newTestCoordinator(target)

	done := make(chan struct{})
	go func() {
		c.Seek(40*time.Second, true)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(target.Calls()) >= 3 }, time.Second, time.Millisecond)
	c.Cancel()
	<-done

	assert.Equal(t, 1, c.Executed())
	assert.Equal(t, []time.Duration{40 * time.Second}, target.completed)
}

func TestSeekRelative_BaseIsPendingTarget(t *testing.T) {
	target := &recordingTarget{}
	c, clk := newTestCoordinator(target)
	c.SetCurrentTime(40 * time.Second)

	req := c.SeekRelative(5*time.Second, false)
	assert.Equal(t, 45*time.Second, req.Target)
	req = c.SeekRelative(5*time.Second, false)
	assert.Equal(t, 50*time.Second, req.Target)
	req = c.SeekRelative(-60*time.Second, false)
	assert.Equal(t, time.Duration(0), req.Target)

	clk.Step(150 * time.Millisecond)
	require.Eventually(t, func() bool { return c.Executed() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []time.Duration{0}, target.Positions())
}

func TestSetDuration_ReclampsPending(t *testing.T) {
	target := &recordingTarget{}
	c, clk := newTestCoordinator(target)

	c.Seek(100*time.Second, false)
	c.SetDuration(60 * time.Second)
	req, ok := c.Pending()
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, req.Target)

	clk.Step(150 * time.Millisecond)
	require.Eventually(t, func() bool { return c.Executed() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []time.Duration{60 * time.Second}, target.Positions())
}

func TestSeek_FailureAborts(t *testing.T) {
	target := &recordingTarget{prior: pipeline.StatePlaying, reconfigErr: errors.New("decoder gone")}
	c, _ := newTestCoordinator(target)

	c.Seek(10*time.Second, true)
	assert.Equal(t, []string{"begin", "reset", "reposition", "reconfigure", "abort"}, target.Calls())
	require.Len(t, target.aborted, 1)
	serr := target.aborted[0]
	assert.Equal(t, 10*time.Second, serr.Target)
	assert.ErrorContains(t, serr, "decoder gone")

	target.calls = nil
	target.reconfigErr = nil
	target.resetErr = errors.New("busy")
	c.Seek(10*time.Second, true)
	assert.Equal(t, []string{"begin", "reset", "abort"}, target.Calls())
}

func TestSeek_ExecutionsAreSerialized(t *testing.T) {
	target := &recordingTarget{hold: 5 * time.Millisecond}
	c, _ := newTestCoordinator(target)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Seek(time.Duration(i)*time.Second, true)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, c.Executed())
	assert.Equal(t, int32(1), target.maxActive.Load())
}

func TestStop_RejectsRequests(t *testing.T) {
	target := &recordingTarget{}
	c, clk := newTestCoordinator(target)

	c.Seek(10*time.Second, false)
	c.Stop()
	c.Seek(20*time.Second, true)
	clk.Step(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, c.Executed())
}
