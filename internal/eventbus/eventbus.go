// Package eventbus implements the Event Bus (C5): a typed, in-process
// pub/sub of real-time events. It generalizes the register/unregister/
// broadcast channel idiom of a websocket hub to arbitrary typed
// subscribers, so the same bus feeds the Adaptive Optimizer (C7) and any
// number of external fan-out subscribers (WebSocket, audit, metrics)
// without those subscribers ever blocking or crashing publication.
package eventbus

import (
	"sync"
	"sync/atomic"

	"dispatch/internal/domain"
	"dispatch/pkg/logger"
)

// DefaultQueueSize bounds a subscriber's pending-event queue when the
// caller does not specify one.
const DefaultQueueSize = 256

// Filter decides whether a subscriber wants a given event. A nil filter
// matches everything.
type Filter func(domain.Event) bool

// KindFilter matches events whose Kind is in the given set.
func KindFilter(kinds ...domain.EventKind) Filter {
	set := make(map[domain.EventKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(e domain.Event) bool { return set[e.Kind] }
}

// RouteFilter matches events carrying the given route id.
func RouteFilter(routeID string) Filter {
	return func(e domain.Event) bool { return e.RouteID == routeID }
}

// SeverityAtLeast matches events at or above the given severity.
func SeverityAtLeast(min domain.EventSeverity) Filter {
	rank := map[domain.EventSeverity]int{
		domain.SeverityLow:      0,
		domain.SeverityMedium:   1,
		domain.SeverityHigh:     2,
		domain.SeverityCritical: 3,
	}
	minRank := rank[min]
	return func(e domain.Event) bool { return rank[e.Severity] >= minRank }
}

// Handle identifies a live subscription, returned by Subscribe and
// consumed by Unsubscribe.
type Handle uint64

// subscriber is one registered listener: a bounded queue plus the filter
// deciding which events reach it.
type subscriber struct {
	handle  Handle
	filter  Filter
	events  chan domain.Event
	dropped atomic.Uint64
}

// Bus is the in-process event bus. The zero value is not usable; build
// one with New.
type Bus struct {
	mu        sync.RWMutex
	subs      map[Handle]*subscriber
	nextID    atomic.Uint64
	queueSize int
}

// New builds a Bus whose subscriber queues hold up to queueSize pending
// events before the overflow policy (drop oldest) kicks in. A queueSize
// of 0 uses DefaultQueueSize.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		subs:      make(map[Handle]*subscriber),
		queueSize: queueSize,
	}
}

// Subscribe registers a new listener matching filter (nil matches every
// event) and returns a handle plus the channel to receive on. The
// channel is closed by Unsubscribe; callers MUST stop reading from it
// once that happens.
func (b *Bus) Subscribe(filter Filter) (Handle, <-chan domain.Event) {
	h := Handle(b.nextID.Add(1))
	s := &subscriber{
		handle: h,
		filter: filter,
		events: make(chan domain.Event, b.queueSize),
	}

	b.mu.Lock()
	b.subs[h] = s
	b.mu.Unlock()

	return h, s.events
}

// Unsubscribe removes a listener and closes its channel. Safe to call
// more than once for the same handle.
func (b *Bus) Unsubscribe(h Handle) {
	b.mu.Lock()
	s, ok := b.subs[h]
	if ok {
		delete(b.subs, h)
	}
	b.mu.Unlock()

	if ok {
		close(s.events)
	}
}

// Publish delivers event to every subscriber whose filter matches. It
// never blocks: a subscriber whose queue is full has its oldest pending
// event dropped to make room, so one slow or stuck consumer can never
// stall the publisher or other subscribers.
func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if s.filter != nil && !s.filter(event) {
			continue
		}
		deliver(s, event)
	}
}

// deliver enqueues event on s, dropping the oldest queued event first if
// the queue is already full.
func deliver(s *subscriber, event domain.Event) {
	select {
	case s.events <- event:
		return
	default:
	}

	select {
	case <-s.events:
		s.dropped.Add(1)
		logger.Warn("eventbus: subscriber queue full, dropped oldest event",
			"handle", s.handle, "dropped_total", s.dropped.Load())
	default:
	}

	select {
	case s.events <- event:
	default:
		// Another publish raced us and refilled the queue; this event is
		// dropped instead rather than blocking the publisher.
		s.dropped.Add(1)
	}
}

// SubscriberCount reports the number of live subscriptions, for metrics
// and tests.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DroppedCount reports how many events have been dropped for the given
// subscriber due to queue overflow.
func (b *Bus) DroppedCount(h Handle) uint64 {
	b.mu.RLock()
	s, ok := b.subs[h]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	return s.dropped.Load()
}
