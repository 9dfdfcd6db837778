package events

import (
	"sync"
	"sync/atomic"

	"vitrine/core/types"
)

const defaultSubscriberBuffer = 64

// Bus fans emitted events out to live subscribers. Slow subscribers do not
// block the emitter; events that do not fit in a subscriber's buffer are
// dropped and counted.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]chan *types.Event
	dropped atomic.Uint64
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan *types.Event)}
}

// Emit implements the Emitter interface.
func (b *Bus) Emit(evt Event) {
	flat := Flatten(evt)
	if b == nil || flat == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- flat.Clone():
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called to release the subscription; it closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan *types.Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan *types.Event, buffer)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
