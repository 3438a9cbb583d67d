package schedule

import "container/heap"

// eventQueue orders pending events by TriggerAt, ties broken by JobID
// so pops are deterministic. It wraps container/heap behind methods so
// callers never touch the heap invariant directly.
type eventQueue struct {
	items eventItems
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	heap.Init(&q.items)
	return q
}

func (q *eventQueue) len() int { return len(q.items) }

func (q *eventQueue) push(e Event) {
	heap.Push(&q.items, e)
}

// pop removes and returns the earliest event. Panics when empty.
func (q *eventQueue) pop() Event {
	return heap.Pop(&q.items).(Event)
}

// peek returns the earliest event without removing it.
func (q *eventQueue) peek() Event {
	return q.items[0]
}

// removeJob drops the first event carrying jobID, reporting whether one
// was found.
func (q *eventQueue) removeJob(jobID string) bool {
	for i, e := range q.items {
		if e.JobID == jobID {
			heap.Remove(&q.items, i)
			return true
		}
	}
	return false
}

type eventItems []Event

func (h eventItems) Len() int { return len(h) }

func (h eventItems) Less(i, j int) bool {
	if h[i].TriggerAt.Equal(h[j].TriggerAt) {
		return h[i].JobID < h[j].JobID
	}
	return h[i].TriggerAt.Before(h[j].TriggerAt)
}

func (h eventItems) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventItems) Push(x any) {
	*h = append(*h, x.(Event))
}

func (h *eventItems) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
