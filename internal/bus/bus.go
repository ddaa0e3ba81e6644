// Package bus provides the bounded buffer between the decode pipeline and
// the broadcast fan-out. Under backpressure it drops the oldest buffered
// events rather than blocking producers, and tells the consumer how many
// events it missed.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"pumpmonitor/internal/domain"
)

// DefaultCapacity is the number of events buffered before eviction starts.
const DefaultCapacity = 100

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("bus closed")

// EventBus is a bounded drop-oldest buffer for token creation events.
// Publish never blocks on a slow consumer.
type EventBus struct {
	mu      sync.Mutex
	ch      chan *domain.TokenCreatedEvent
	closed  bool
	skipped atomic.Uint64
	dropped atomic.Uint64
}

// New creates a bus with the given capacity; capacity <= 0 uses DefaultCapacity.
func New(capacity int) *EventBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &EventBus{
		ch: make(chan *domain.TokenCreatedEvent, capacity),
	}
}

// Publish enqueues an event. When the buffer is full the oldest event is
// evicted and counted; the consumer learns the count on its next Receive.
// Publishing to a closed bus is a no-op.
func (b *EventBus) Publish(ev *domain.TokenCreatedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for {
		select {
		case b.ch <- ev:
			return
		default:
		}

		// Full: evict the oldest entry. The consumer may have drained
		// concurrently, so the eviction itself may find nothing; the
		// loop retries the send either way.
		select {
		case <-b.ch:
			b.skipped.Add(1)
			b.dropped.Add(1)
		default:
		}
	}
}

// Receive blocks for the next event and reports how many events were
// dropped since the previous successful Receive. Returns ErrClosed once
// the bus is closed and drained.
func (b *EventBus) Receive(ctx context.Context) (*domain.TokenCreatedEvent, uint64, error) {
	select {
	case ev, ok := <-b.ch:
		if !ok {
			return nil, 0, ErrClosed
		}
		return ev, b.skipped.Swap(0), nil
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// Close stops the bus. Buffered events remain readable; Receive returns
// ErrClosed after they drain. Safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}

// Len reports the number of buffered events.
func (b *EventBus) Len() int {
	return len(b.ch)
}

// Dropped reports the cumulative number of evicted events.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}
