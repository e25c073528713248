package mocks

import (
	"sync"
	"time"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// PresentationSink is a mock implementation of ports.PresentationSink.
type PresentationSink struct {
	mu sync.Mutex

	PresentFunc func(pic *pipeline.Picture) error

	Presented   []time.Duration
	CloseCalled int
}

func (m *PresentationSink) Present(pic *pipeline.Picture) error {
	m.mu.Lock()
	m.Presented = append(m.Presented, pic.Timestamp)
	m.mu.Unlock()
	if m.PresentFunc != nil {
		return m.PresentFunc(pic)
	}
	return nil
}

func (m *PresentationSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled++
	return nil
}

// Timestamps returns a copy of the presented timestamps.
func (m *PresentationSink) Timestamps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.Presented...)
}

var _ ports.PresentationSink = (*PresentationSink)(nil)

// EventSink is a mock implementation of ports.EventSink that records events.
type EventSink struct {
	mu     sync.Mutex
	Events []pipeline.Event
}

func (m *EventSink) Publish(ev pipeline.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
}

// Kind returns the recorded events of one kind.
func (m *EventSink) Kind(kind pipeline.EventKind) []pipeline.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pipeline.Event
	for _, ev := range m.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// States returns the NewState of every state-change event in order.
func (m *EventSink) States() []pipeline.PlayerState {
	var out []pipeline.PlayerState
	for _, ev := range m.Kind(pipeline.EventStateChange) {
		out = append(out, ev.NewState)
	}
	return out
}

// Reset forgets recorded events.
func (m *EventSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = nil
}

var _ ports.EventSink = (*EventSink)(nil)
