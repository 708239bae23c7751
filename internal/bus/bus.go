// Package bus is the topic-based publish/subscribe backbone. It is a pure
// routing layer: it holds no business state. Within one process delivery is
// synchronous, in-order and exactly-once per subscriber for events published
// on the same topic.
package bus

import (
	"errors"
	"sync"

	"main/internal/schema"
)

var (
	ErrBadPattern    = errors.New("bus: invalid topic pattern")
	ErrNilHandler    = errors.New("bus: nil handler")
	ErrClosed        = errors.New("bus: closed")
	ErrDuplicateName = errors.New("bus: duplicate subscriber name")
)

// Event is the unit passed through the bus. Payload is immutable once
// published; subscribers must not retain it past the handler call unless
// they copy it.
type Event struct {
	Topic   string
	Header  schema.EventHeader
	Payload []byte
}

// Handler consumes one event. Handlers run on the publisher's goroutine for
// synchronous subscribers and on a dedicated drain goroutine for queued
// subscribers; they must not block on long-running I/O.
type Handler func(Event)

// OverflowFunc is invoked when a queued subscriber drops an event.
type OverflowFunc func(subscriber string, ev Event)

type subscription struct {
	name    string
	pattern []string
	handler Handler
	queue   *queue
}

// Bus routes events to pattern subscribers. Subscriptions are expected to be
// set up before the event flow starts; Publish takes only a read lock.
type Bus struct {
	mu         sync.RWMutex
	subs       []*subscription
	names      map[string]struct{}
	closed     bool
	onOverflow OverflowFunc
	wg         sync.WaitGroup
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{names: make(map[string]struct{})}
}

// SetOverflowFunc registers the callback invoked on queued-subscriber drops.
// Must be called before the first Publish.
func (b *Bus) SetOverflowFunc(fn OverflowFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onOverflow = fn
}

// Subscribe registers a synchronous subscriber. The handler runs inline on
// the publisher's goroutine, which keeps backtest dispatch deterministic.
func (b *Bus) Subscribe(name, pattern string, handler Handler) error {
	return b.add(name, pattern, handler, 0)
}

// SubscribeQueued registers a subscriber with a bounded queue of the given
// depth, drained by a dedicated goroutine. When the queue is full new events
// for this subscriber are dropped and the overflow callback fires; this is a
// degraded condition, not a fatal one.
func (b *Bus) SubscribeQueued(name, pattern string, depth int, handler Handler) error {
	if depth <= 0 {
		depth = 1
	}
	return b.add(name, pattern, handler, depth)
}

func (b *Bus) add(name, pattern string, handler Handler, depth int) error {
	if handler == nil {
		return ErrNilHandler
	}
	segments, err := compilePattern(pattern)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, ok := b.names[name]; ok {
		return ErrDuplicateName
	}
	sub := &subscription{name: name, pattern: segments, handler: handler}
	if depth > 0 {
		sub.queue = newQueue(depth)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			sub.queue.drain(sub.handler)
		}()
	}
	b.subs = append(b.subs, sub)
	b.names[name] = struct{}{}
	return nil
}

// Publish delivers the event to every matching subscriber in subscription
// order. Synchronous subscribers run inline; queued subscribers receive the
// event on their queue or drop it when full.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.subs
	onOverflow := b.onOverflow
	b.mu.RUnlock()

	for _, sub := range subs {
		if !matchSegments(sub.pattern, ev.Topic) {
			continue
		}
		if sub.queue == nil {
			sub.handler(ev)
			continue
		}
		if !sub.queue.tryPush(ev) && onOverflow != nil {
			onOverflow(sub.name, ev)
		}
	}
}

// Close stops queued subscribers after their pending events are drained.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.queue != nil {
			sub.queue.close()
		}
	}
	b.wg.Wait()
}
