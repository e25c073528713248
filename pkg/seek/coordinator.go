// Package seek debounces seek requests and runs the stop, reset,
// reposition, reconfigure, resume protocol against the player.
package seek

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"k8s.io/utils/clock"

	"github.com/user/playcore/pkg/adapters/logger"
	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// DefaultDelay is the debounce window used when Options.Delay is zero.
const DefaultDelay = 150 * time.Millisecond

// Target is the pipeline a seek operates on. The coordinator calls the
// methods in order and never concurrently with another execution.
type Target interface {
	// BeginSeek stops the tick loop and returns the state to restore.
	BeginSeek() pipeline.PlayerState

	// ResetPipeline resets the decode bridge and clears the decoded queues.
	ResetPipeline() error

	// Reposition moves the demuxer and returns the time actually reached.
	Reposition(t time.Duration) (time.Duration, error)

	// Reconfigure configures the decode bridge again.
	Reconfigure() error

	// CompleteSeek restores prior and restarts the tick loop if needed.
	CompleteSeek(prior pipeline.PlayerState, actual time.Duration)

	// AbortSeek handles a failed step. The target decides whether prior can be restored.
	AbortSeek(prior pipeline.PlayerState, err *pipeline.SeekError)
}

// Options configures a Coordinator.
type Options struct {
	Delay  time.Duration
	Clock  clock.WithDelayedExecution // defaults to the real clock
	Logger ports.Logger
}

// Coordinator holds at most one pending seek request.
type Coordinator struct {
	target Target
	clock  clock.WithDelayedExecution
	delay  time.Duration
	log    ports.Logger

	mu       sync.Mutex
	seq      uint64
	pending  *pipeline.SeekRequest
	timer    clock.Timer
	current  time.Duration
	duration time.Duration
	stopped  bool
	executed int

	execMu sync.Mutex
}

// NewCoordinator creates a Coordinator for target.
func NewCoordinator(target Target, opts Options) *Coordinator {
	c := &Coordinator{
		target: target,
		clock:  opts.Clock,
		delay:  opts.Delay,
		log:    opts.Logger,
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.delay <= 0 {
		c.delay = DefaultDelay
	}
	c.log = logger.OrNoop(c.log)
	return c
}

// Seek requests a seek to t, clamped to [0, duration]. Unless immediate is
// set the request waits for the debounce window, and every new request
// replaces the pending one and restarts the window. An immediate request
// runs before Seek returns.
func (c *Coordinator) Seek(t time.Duration, immediate bool) pipeline.SeekRequest {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return pipeline.SeekRequest{}
	}
	req := pipeline.SeekRequest{Target: c.clamp(t), Immediate: immediate}
	c.seq++
	seq := c.seq
	old := c.timer
	c.timer = nil
	if immediate {
		c.pending = nil
	} else {
		c.pending = &req
	}
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if immediate {
		c.execute(req)
		return req
	}

	timer := c.clock.AfterFunc(c.delay, func() { c.fire(seq) })
	c.mu.Lock()
	if c.seq == seq {
		c.timer = timer
		timer = nil
	}
	c.mu.Unlock()
	if timer != nil {
		// superseded while arming
		timer.Stop()
	}
	return req
}

// SeekRelative seeks by d from the pending target, or from the current
// time when nothing is pending.
func (c *Coordinator) SeekRelative(d time.Duration, immediate bool) pipeline.SeekRequest {
	c.mu.Lock()
	base := c.current
	if c.pending != nil {
		base = c.pending.Target
	}
	c.mu.Unlock()
	return c.Seek(base+d, immediate)
}

// Cancel drops the pending request. A seek already executing is not affected.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	c.seq++
	c.pending = nil
	old := c.timer
	c.timer = nil
	c.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

// IsPending reports whether a request is waiting for its window to elapse.
func (c *Coordinator) IsPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Pending returns the pending request.
func (c *Coordinator) Pending() (pipeline.SeekRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return pipeline.SeekRequest{}, false
	}
	return *c.pending, true
}

// SetCurrentTime records the playback position used by SeekRelative.
func (c *Coordinator) SetCurrentTime(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// SetDuration changes the clamping range and re-clamps the pending target.
func (c *Coordinator) SetDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = max(d, 0)
	if c.pending != nil {
		c.pending.Target = c.clamp(c.pending.Target)
	}
}

// Executed returns the number of seeks that ran to completion or failure.
func (c *Coordinator) Executed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executed
}

// Stop cancels the pending request and rejects further ones. It waits for
// an executing seek to finish.
func (c *Coordinator) Stop() {
	c.Cancel()
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.execMu.Lock()
	defer c.execMu.Unlock()
}

func (c *Coordinator) clamp(t time.Duration) time.Duration {
	return lo.Clamp(t, 0, c.duration)
}

func (c *Coordinator) fire(seq uint64) {
	c.mu.Lock()
	if seq != c.seq || c.pending == nil {
		c.mu.Unlock()
		return
	}
	req := *c.pending
	c.pending = nil
	c.timer = nil
	c.mu.Unlock()

	c.execute(req)
}

func (c *Coordinator) execute(req pipeline.SeekRequest) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.log.Debug("Executing seek to %v", req.Target)
	prior := c.target.BeginSeek()
	actual, err := c.run(req.Target)

	c.mu.Lock()
	c.executed++
	if err == nil {
		c.current = actual
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("Seek to %v failed: %v", req.Target, err)
		c.target.AbortSeek(prior, &pipeline.SeekError{Target: req.Target, Err: err})
		return
	}
	c.target.CompleteSeek(prior, actual)
}

func (c *Coordinator) run(t time.Duration) (time.Duration, error) {
	if err := c.target.ResetPipeline(); err != nil {
		return 0, fmt.Errorf("reset pipeline: %w", err)
	}
	actual, err := c.target.Reposition(t)
	if err != nil {
		return 0, fmt.Errorf("reposition: %w", err)
	}
	if err := c.target.Reconfigure(); err != nil {
		return 0, fmt.Errorf("reconfigure: %w", err)
	}
	return actual, nil
}
