// Package frameclock provides a FrameScheduler driven by a fixed-rate ticker.
package frameclock

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/user/playcore/pkg/ports"
)

// DefaultFPS is the tick rate used when none is given.
const DefaultFPS = 60

// Clock implements ports.FrameScheduler. Callbacks requested before a tick
// run on that tick, in request order, on the Run goroutine.
type Clock struct {
	clk      clock.WithTicker
	interval time.Duration

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]func()
	order   []uint64
	frames  int
}

// New creates a Clock ticking fps times per second. A nil clock uses the
// real clock.
func New(clk clock.WithTicker, fps float64) *Clock {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Clock{
		clk:      clk,
		interval: time.Duration(float64(time.Second) / fps),
		pending:  make(map[uint64]func()),
	}
}

// Interval returns the time between ticks.
func (c *Clock) Interval() time.Duration { return c.interval }

// RequestFrame schedules fn for the next tick.
func (c *Clock) RequestFrame(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.pending[id] = fn
	c.order = append(c.order, id)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.pending, id)
	}
}

// Run ticks until ctx is done.
func (c *Clock) Run(ctx context.Context) error {
	ticker := c.clk.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			c.Tick()
		}
	}
}

// Tick runs the callbacks requested so far and reports how many ran.
func (c *Clock) Tick() int {
	c.mu.Lock()
	var fns []func()
	for _, id := range c.order {
		if fn, ok := c.pending[id]; ok {
			fns = append(fns, fn)
			delete(c.pending, id)
		}
	}
	c.order = c.order[:0]
	c.frames++
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Frames returns the number of ticks so far.
func (c *Clock) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

var _ ports.FrameScheduler = (*Clock)(nil)
