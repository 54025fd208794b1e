package event

import (
	"context"
	"sync"

	"pairlab/internal/metrics"
)

const defaultSubscriberBufferSize = 128

type BusOptions struct {
	Name                 string
	SubscriberBufferSize int
	// HistorySize retains the newest events for DumpHistory; zero keeps none.
	HistorySize int
	Registry    *metrics.Registry
}

// Bus is a non-blocking fan-out of events to subscriber channels. Publish
// never waits on a subscriber: a full channel drops the event and the drop is
// counted in the metrics registry. Delivery happens under the bus lock, so an
// unsubscribe can never race a send.
type Bus[T any] struct {
	name     string
	buffer   int
	registry *metrics.Registry

	mu          sync.Mutex
	subscribers map[uint64]subscription[T]
	lastID      uint64
	closed      bool
	history     ring[T]
}

type subscription[T any] struct {
	ch     chan T
	filter func(T) bool
}

// NewBus returns an open bus that closes itself when ctx is done.
func NewBus[T any](ctx context.Context, opts BusOptions) *Bus[T] {
	bus := &Bus[T]{
		name:        opts.Name,
		buffer:      opts.SubscriberBufferSize,
		registry:    opts.Registry,
		subscribers: make(map[uint64]subscription[T]),
		history:     newRing[T](opts.HistorySize),
	}
	if bus.name == "" {
		bus.name = "event_bus"
	}
	if bus.buffer <= 0 {
		bus.buffer = defaultSubscriberBufferSize
	}
	if bus.registry == nil {
		bus.registry = metrics.Default
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			bus.Close()
		}()
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

// SubscribeFiltered delivers only events filter accepts. A filter that panics
// loses its subscription.
func (b *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	if b == nil {
		return closedChannel[T](), func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return closedChannel[T](), func() {}
	}
	b.lastID++
	id := b.lastID
	ch := make(chan T, b.buffer)
	b.subscribers[id] = subscription[T]{ch: ch, filter: filter}
	b.registry.SetEventSubscriberCount(b.name, len(b.subscribers))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.dropLocked(id)
		})
	}
}

// SubscribeTypes delivers only events whose Type() is one of eventTypes.
func (b *Bus[T]) SubscribeTypes(eventTypes ...string) (<-chan T, func()) {
	allowed := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		if eventType != "" {
			allowed[eventType] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return closedChannel[T](), func() {}
	}
	return b.SubscribeFiltered(func(event T) bool {
		_, ok := allowed[eventTypeOf(event)]
		return ok
	})
}

func (b *Bus[T]) Publish(event T) {
	if b == nil {
		return
	}
	eventType := eventTypeOf(event)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.history.push(event)
	dropped := 0
	for id, sub := range b.subscribers {
		accepted, ok := accepts(sub, event)
		if !ok {
			b.dropLocked(id)
			continue
		}
		if !accepted {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()

	b.registry.IncEventPublished(b.name, eventType)
	for ; dropped > 0; dropped-- {
		b.registry.IncEventDropped(b.name, eventType)
	}
}

func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id := range b.subscribers {
		b.dropLocked(id)
	}
}

// DumpHistory returns a copy of the retained events, oldest first.
func (b *Bus[T]) DumpHistory() []T {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.list()
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (b *Bus[T]) dropLocked(id uint64) {
	sub, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(sub.ch)
	b.registry.SetEventSubscriberCount(b.name, len(b.subscribers))
}

// accepts runs the subscriber filter; ok is false when the filter panicked.
func accepts[T any](sub subscription[T], event T) (accepted, ok bool) {
	if sub.filter == nil {
		return true, true
	}
	defer func() {
		if recover() != nil {
			accepted, ok = false, false
		}
	}()
	return sub.filter(event), true
}

// eventTypeOf labels metrics and type filters. Anything with a Type method
// qualifies, not only Event implementations.
func eventTypeOf[T any](event T) string {
	typed, ok := any(event).(interface{ Type() string })
	if !ok || typed.Type() == "" {
		return "unknown"
	}
	return typed.Type()
}

func closedChannel[T any]() chan T {
	ch := make(chan T)
	close(ch)
	return ch
}

// ring keeps the newest len(items) values.
type ring[T any] struct {
	items []T
	next  int
	full  bool
}

func newRing[T any](size int) ring[T] {
	if size <= 0 {
		return ring[T]{}
	}
	return ring[T]{items: make([]T, size)}
}

func (r *ring[T]) push(value T) {
	if len(r.items) == 0 {
		return
	}
	r.items[r.next] = value
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring[T]) list() []T {
	if !r.full {
		if r.next == 0 {
			return nil
		}
		return append([]T(nil), r.items[:r.next]...)
	}
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}
