package realtime

import "sync"

// Bus mirrors every broadcast for in-process consumers (polling endpoints,
// SSE bridges, tests) so no transport-specific code leaks into the
// generation worker or the chain relay.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*busSubscription
	next int
}

type busSubscription struct {
	channel string
	ch      chan Envelope
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*busSubscription)}
}

// Subscribe returns a buffered event channel for one realtime channel and a
// cancel function. Events are dropped, never blocked on, when the consumer
// lags.
func (b *Bus) Subscribe(channel string) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	sub := &busSubscription{channel: channel, ch: make(chan Envelope, 16)}
	b.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

func (b *Bus) publish(channel string, env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.channel != channel {
			continue
		}
		select {
		case sub.ch <- env:
		default:
		}
	}
}
