// Package events fans playback events out to subscribers.
package events

import (
	"slices"
	"sync"

	"github.com/user/playcore/pkg/pipeline"
	"github.com/user/playcore/pkg/ports"
)

// Handler receives events. Handlers run on the publishing goroutine and
// must not call back into the player synchronously.
type Handler func(ev pipeline.Event)

type subscription struct {
	id    uint64
	kinds []pipeline.EventKind
	fn    Handler
}

func (s *subscription) wants(kind pipeline.EventKind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, kind)
}

// Bus is a ports.EventSink with any number of subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []*subscription
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for the given kinds, or for every kind when none
// are given. The returned func removes the subscription.
func (b *Bus) Subscribe(fn Handler, kinds ...pipeline.EventKind) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, &subscription{id: id, kinds: kinds, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.subs = slices.DeleteFunc(b.subs, func(s *subscription) bool { return s.id == id })
		})
	}
}

// Channel subscribes a buffered channel. Events are dropped when the
// channel is full. The channel is closed by the returned func.
func (b *Bus) Channel(size int, kinds ...pipeline.EventKind) (<-chan pipeline.Event, func()) {
	ch := make(chan pipeline.Event, size)
	var mu sync.Mutex
	closed := false
	unsub := b.Subscribe(func(ev pipeline.Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	}, kinds...)
	return ch, func() {
		unsub()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}

// Publish delivers ev to every matching subscriber in subscription order.
func (b *Bus) Publish(ev pipeline.Event) {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.wants(ev.Kind) {
			s.fn(ev)
		}
	}
}

// Len returns the number of subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

var _ ports.EventSink = (*Bus)(nil)
