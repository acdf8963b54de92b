package eventbus

import (
	"sync"

	"github.com/kilianp07/pilesim/core/model"
)

// Bus fans pile events out to observers. Delivery is non-blocking: a slow
// observer loses events rather than stalling the pile that published them.
// The protocol event path does not go through the bus.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan model.PileEvent
	closed bool
}

// New creates an empty Bus.
func New() *Bus { return &Bus{} }

// Publish sends the event to every subscriber whose buffer has room.
func (b *Bus) Publish(ev model.PileEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers an observer and returns its channel. The buffer sets
// how many events the observer may lag before losing some.
func (b *Bus) Subscribe(buffer int) <-chan model.PileEvent {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan model.PileEvent, buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the observer and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan model.PileEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes all subscriber channels and clears the list.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
