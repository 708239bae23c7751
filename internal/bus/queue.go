package bus

import "sync/atomic"

// queue is a bounded, non-blocking event queue feeding one subscriber.
type queue struct {
	ch     chan Event
	closed uint32
}

func newQueue(capacity int) *queue {
	return &queue{ch: make(chan Event, capacity)}
}

// tryPush enqueues without blocking. Returns false when the queue is full
// or closed; the caller decides how to surface the drop.
func (q *queue) tryPush(ev Event) bool {
	if atomic.LoadUint32(&q.closed) != 0 {
		return false
	}
	select {
	case q.ch <- ev:
		return true
	default:
		return false
	}
}

func (q *queue) close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// drain consumes events until the queue is closed and empty. Per-subscriber
// ordering comes from the single drain goroutine.
func (q *queue) drain(handler Handler) {
	for ev := range q.ch {
		handler(ev)
	}
}
