package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// DelayedItem is one pending fire in the DelayQueue, keyed by the later of
// its enqueue time and its not-before time (spec §4.1 Envelope fields
// EnqueuedAt/NotBefore).
type DelayedItem struct {
	EnvelopeID string
	FireAt     time.Time
	index      int
}

type delayHeap []*DelayedItem

func (h delayHeap) Len() int            { return len(h) }
func (h delayHeap) Less(i, j int) bool  { return h[i].FireAt.Before(h[j].FireAt) }
func (h delayHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *delayHeap) Push(x interface{}) {
	item := x.(*DelayedItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *delayHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// DelayQueue is a min-heap of pending envelope fire times, used by the
// Scheduler to hold envelopes until NotBefore elapses (spec §4.3).
type DelayQueue struct {
	mu sync.Mutex
	h  delayHeap
}

// NewDelayQueue creates an empty delay queue.
func NewDelayQueue() *DelayQueue {
	dq := &DelayQueue{h: make(delayHeap, 0)}
	heap.Init(&dq.h)
	return dq
}

// Push schedules an envelope to become ready at fireAt.
func (dq *DelayQueue) Push(envelopeID string, fireAt time.Time) {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	heap.Push(&dq.h, &DelayedItem{EnvelopeID: envelopeID, FireAt: fireAt})
}

// PopReady removes and returns every item whose FireAt is <= now.
func (dq *DelayQueue) PopReady(now time.Time) []*DelayedItem {
	dq.mu.Lock()
	defer dq.mu.Unlock()

	var ready []*DelayedItem
	for dq.h.Len() > 0 && !dq.h[0].FireAt.After(now) {
		ready = append(ready, heap.Pop(&dq.h).(*DelayedItem))
	}
	return ready
}

// Len reports the number of pending items.
func (dq *DelayQueue) Len() int {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	return dq.h.Len()
}

// PeekNext returns the earliest pending fire time, if any.
func (dq *DelayQueue) PeekNext() (time.Time, bool) {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	if dq.h.Len() == 0 {
		return time.Time{}, false
	}
	return dq.h[0].FireAt, true
}
