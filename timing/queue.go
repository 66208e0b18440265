package timing

import (
	"container/heap"
	"sync"
)

// EventQueue is a queue of events ordered by time. Events of the same time
// leave the queue in the order they entered it.
type EventQueue interface {
	Push(evt Event)
	Pop() Event
	Len() int
	Peek() Event
}

// NewEventQueue creates an empty, thread-safe EventQueue.
func NewEventQueue() EventQueue {
	q := &heapQueue{}
	heap.Init(&q.events)

	return q
}

type queued struct {
	evt Event
	seq uint64
}

type heapQueue struct {
	sync.Mutex

	events  eventHeap
	nextSeq uint64
}

func (q *heapQueue) Push(evt Event) {
	q.Lock()
	heap.Push(&q.events, queued{evt: evt, seq: q.nextSeq})
	q.nextSeq++
	q.Unlock()
}

func (q *heapQueue) Pop() Event {
	q.Lock()
	e := heap.Pop(&q.events).(queued)
	q.Unlock()

	return e.evt
}

func (q *heapQueue) Len() int {
	q.Lock()
	l := q.events.Len()
	q.Unlock()

	return l
}

func (q *heapQueue) Peek() Event {
	q.Lock()
	evt := q.events[0].evt
	q.Unlock()

	return evt
}

type eventHeap []queued

func (h eventHeap) Len() int {
	return len(h)
}

func (h eventHeap) Less(i, j int) bool {
	ti, tj := h[i].evt.Time(), h[j].evt.Time()
	if ti != tj {
		return ti < tj
	}

	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(queued))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = queued{}
	*h = old[0 : n-1]

	return e
}
