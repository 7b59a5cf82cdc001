// Package mailbox provides the bounded, priority-ordered channel that sits
// between every producer (pollers, debouncers, supervisor) and the single
// network consumer.
//
// Producers never block: TryPublish drops the newest item when the channel is
// full. The consumer always receives the item with the numerically lowest
// priority; equal priorities come out in arrival order.
package mailbox

import (
	"container/heap"
	"context"
	"sync"

	"sensenode/types"
)

// DefaultCapacity matches the node's fixed channel size.
const DefaultCapacity = 20

// Prioritized is anything carrying a priority (lower = more urgent).
type Prioritized interface {
	Prio() types.Priority
}

// -----------------------------------------------------------------------------
// Heap
// -----------------------------------------------------------------------------

type entry[T Prioritized] struct {
	item T
	prio types.Priority
	seq  uint64
}

type entryHeap[T Prioritized] []entry[T]

func (h entryHeap[T]) Len() int { return len(h) }
func (h entryHeap[T]) Less(i, j int) bool {
	if h[i].prio != h[j].prio {
		return h[i].prio < h[j].prio
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap[T]) Push(x any)   { *h = append(*h, x.(entry[T])) }
func (h *entryHeap[T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	var zero entry[T]
	old[n-1] = zero
	*h = old[:n-1]
	return e
}

// -----------------------------------------------------------------------------
// Channel
// -----------------------------------------------------------------------------

// Channel is a bounded priority mailbox.
type Channel[T Prioritized] struct {
	mu    sync.Mutex
	h     entryHeap[T]
	cap   int
	seq   uint64
	ready chan struct{} // signalled when an item is added
	space chan struct{} // signalled when an item is removed

	// OnDrop, if set, is called (outside the lock) for every rejected item.
	OnDrop func(T)
}

// New creates a channel holding at most capacity items.
func New[T Prioritized](capacity int) *Channel[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel[T]{
		h:     make(entryHeap[T], 0, capacity),
		cap:   capacity,
		ready: make(chan struct{}, 1),
		space: make(chan struct{}, 1),
	}
}

// Cap returns the fixed capacity.
func (c *Channel[T]) Cap() int { return c.cap }

// Len returns the number of queued items.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.h)
}

// TryPublish enqueues item without blocking. It returns false when the channel
// is full; the item is then dropped.
func (c *Channel[T]) TryPublish(item T) bool {
	c.mu.Lock()
	if len(c.h) >= c.cap {
		c.mu.Unlock()
		if c.OnDrop != nil {
			c.OnDrop(item)
		}
		return false
	}
	c.seq++
	heap.Push(&c.h, entry[T]{item: item, prio: item.Prio(), seq: c.seq})
	c.mu.Unlock()
	signal(c.ready)
	return true
}

// Publish enqueues item, waiting for room if the channel is full. Only
// callers that may legitimately stall (never the sensing loops) should use it.
func (c *Channel[T]) Publish(ctx context.Context, item T) error {
	for {
		c.mu.Lock()
		if len(c.h) < c.cap {
			c.seq++
			heap.Push(&c.h, entry[T]{item: item, prio: item.Prio(), seq: c.seq})
			c.mu.Unlock()
			signal(c.ready)
			return nil
		}
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.space:
		}
	}
}

// TryReceive pops the most urgent item if one is queued.
func (c *Channel[T]) TryReceive() (T, bool) {
	c.mu.Lock()
	if len(c.h) == 0 {
		c.mu.Unlock()
		var zero T
		return zero, false
	}
	e := heap.Pop(&c.h).(entry[T])
	more := len(c.h) > 0
	c.mu.Unlock()
	signal(c.space)
	if more {
		// Keep the wakeup latched for any other waiting receiver.
		signal(c.ready)
	}
	return e.item, true
}

// Receive waits until an item is available and returns the most urgent one.
// It returns ctx.Err() if the context ends first.
func (c *Channel[T]) Receive(ctx context.Context) (T, error) {
	for {
		if it, ok := c.TryReceive(); ok {
			return it, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-c.ready:
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
