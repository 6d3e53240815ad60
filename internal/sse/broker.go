// Package sse fans values out to server-sent-event subscribers.
package sse

import (
	"sync"
	"sync/atomic"
)

// Broker delivers every published value to all current subscribers. A
// subscriber whose buffer is full misses the value; Publish never blocks.
type Broker[T any] struct {
	mu      sync.RWMutex
	clients map[chan T]struct{}
	dropped atomic.Uint64
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{clients: make(map[chan T]struct{})}
}

// Subscribe registers a channel with the given buffer size.
func (b *Broker[T]) Subscribe(buf int) chan T {
	if buf < 0 {
		buf = 0
	}
	ch := make(chan T, buf)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (b *Broker[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; !ok {
		return
	}
	delete(b.clients, ch)
	close(ch)
}

func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- v:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}
