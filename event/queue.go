// Package event implements the reactive side of the kernel: sensors push
// events into a priority queue and a single Reactor drains it, deciding and
// applying one reaction at a time.
package event

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/agentkernel/core"
)

// Queue orders events by descending priority. Events of equal priority keep
// their arrival order.
type Queue struct {
	mu    sync.Mutex
	items []core.ReactiveEvent
	ready chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push inserts ev behind every event of greater or equal priority.
func (q *Queue) Push(ev core.ReactiveEvent) {
	q.mu.Lock()

	i := sort.Search(len(q.items), func(i int) bool { return q.items[i].Priority < ev.Priority })
	q.items = append(q.items, core.ReactiveEvent{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = ev

	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes the highest priority event.
func (q *Queue) Pop() (core.ReactiveEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return core.ReactiveEvent{}, false
	}

	ev := q.items[0]
	q.items[0] = core.ReactiveEvent{}
	q.items = q.items[1:]

	return ev, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Drain removes and returns all events in priority order.
func (q *Queue) Drain() []core.ReactiveEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil

	return out
}

// Wait blocks until an event is available or ctx ends.
func (q *Queue) Wait(ctx context.Context) (core.ReactiveEvent, error) {
	for {
		if ev, ok := q.Pop(); ok {
			return ev, nil
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return core.ReactiveEvent{}, ctx.Err()
		}
	}
}
