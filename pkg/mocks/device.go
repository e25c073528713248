package mocks

import (
	"sync"
	"time"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// ScheduleCall records a call to AudioDevice.Schedule.
type ScheduleCall struct {
	At       time.Duration
	Duration time.Duration
	Media    time.Duration
	Gain     float64
}

// AudioDevice is a mock implementation of ports.AudioDevice with a manually
// advanced clock.
type AudioDevice struct {
	mu sync.Mutex

	now       time.Duration
	suspended bool

	ScheduleErr error
	Scheduled   []ScheduleCall
	Gains       []float64
	FlushCalled int
	CloseCalled int
}

// Advance moves the device clock forward unless the device is suspended.
func (m *AudioDevice) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.suspended {
		m.now += d
	}
}

func (m *AudioDevice) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *AudioDevice) Schedule(buf *pipeline.AudioBuffer, at time.Duration, gain float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScheduleErr != nil {
		return m.ScheduleErr
	}
	m.Scheduled = append(m.Scheduled, ScheduleCall{At: at, Duration: buf.Duration, Media: buf.Timestamp, Gain: gain})
	return nil
}

func (m *AudioDevice) SetGain(gain float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gains = append(m.Gains, gain)
}

func (m *AudioDevice) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = true
}

func (m *AudioDevice) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = false
}

// Suspended reports whether the device clock is stopped.
func (m *AudioDevice) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

func (m *AudioDevice) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FlushCalled++
}

func (m *AudioDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled++
	return nil
}

// Calls returns a copy of the recorded Schedule calls.
func (m *AudioDevice) Calls() []ScheduleCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScheduleCall(nil), m.Scheduled...)
}

var _ ports.AudioDevice = (*AudioDevice)(nil)

// FrameScheduler is a mock implementation of ports.FrameScheduler. Frames
// run only when the test calls Step.
type FrameScheduler struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]func()
	order   []int

	RequestCalled int
}

func (m *FrameScheduler) RequestFrame(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		m.pending = make(map[int]func())
	}
	m.RequestCalled++
	m.nextID++
	id := m.nextID
	m.pending[id] = fn
	m.order = append(m.order, id)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.pending, id)
	}
}

// Step runs the callbacks requested before the call and reports how many ran.
func (m *FrameScheduler) Step() int {
	m.mu.Lock()
	var fns []func()
	for _, id := range m.order {
		if fn, ok := m.pending[id]; ok {
			fns = append(fns, fn)
			delete(m.pending, id)
		}
	}
	m.order = nil
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Pending returns the number of requested frames that have not run.
func (m *FrameScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

var _ ports.FrameScheduler = (*FrameScheduler)(nil)
