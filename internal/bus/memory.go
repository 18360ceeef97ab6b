package bus

import (
	"sync"
	"time"
)

// MemoryBus fans events out to in-process subscribers over buffered
// channels. Slow subscribers drop events rather than block the
// publisher.
type MemoryBus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

var _ Publisher = (*MemoryBus)(nil)

// Subscribe returns a channel receiving every future event.
func (b *MemoryBus) Subscribe() <-chan Event {
	ch := make(chan Event, 1024)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the event to all subscribers, dropping for full
// ones.
func (b *MemoryBus) Publish(topic Topic, payload map[string]interface{}) {
	ev := Event{Topic: topic, At: time.Now(), Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Drain collects everything currently buffered on a subscription
// without blocking. For tests.
func Drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
