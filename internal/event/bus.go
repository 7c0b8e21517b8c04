package event

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/council/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// Publisher is the narrow interface producers depend on.
type Publisher interface {
	Publish(event Event)
}

// subscription represents a registered event handler.
type subscription struct {
	id        string
	eventType string
	handler   Handler
}

// Bus is a pub-sub event bus. It allows the engine to report progress to
// observers (dashboard, CLI printer, logs) without depending on them.
//
// A Bus created with NewBus dispatches synchronously on the publishing
// goroutine. A Bus created with NewAsyncBus queues events and dispatches
// them in order on a single goroutine; Publish never blocks, and events
// are dropped when the queue is full.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // eventType -> subscriptions
	nextID        atomic.Uint64
	logger        *logging.Logger

	queue   chan Event
	done    chan struct{}
	closed  atomic.Bool
	dropped atomic.Uint64
	closeMu sync.RWMutex
}

// NewBus creates a synchronous event bus.
func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[string][]subscription),
	}
}

// NewAsyncBus creates a bus that delivers events on a background goroutine
// through a queue of the given size. Call Close to drain and stop it.
func NewAsyncBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	b := NewBus()
	b.queue = make(chan Event, buffer)
	b.done = make(chan struct{})
	go b.run()
	return b
}

// SetLogger routes handler panic reports to the given logger.
func (b *Bus) SetLogger(logger *logging.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

// Subscribe registers a handler for a specific event type.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.subscriptions[eventType] = append(b.subscriptions[eventType], subscription{
		id:        id,
		eventType: eventType,
		handler:   handler,
	})
	return id
}

// SubscribeAll registers a handler for all event types.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe("*", handler)
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				b.subscriptions[eventType] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Publish delivers an event to all registered handlers. Specific handlers
// run before wildcard handlers, each group in registration order. A
// panicking handler is logged and recovered so the others still run.
// Publishing on a nil Bus is a no-op.
func (b *Bus) Publish(event Event) {
	if b == nil || event == nil {
		return
	}
	if b.queue == nil {
		b.dispatch(event)
		return
	}

	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed.Load() {
		return
	}
	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
	}
}

// Close stops an async bus after delivering everything already queued.
// It is a no-op for synchronous buses and safe to call more than once.
func (b *Bus) Close() {
	if b == nil || b.queue == nil {
		return
	}
	b.closeMu.Lock()
	if b.closed.Swap(true) {
		b.closeMu.Unlock()
		return
	}
	close(b.queue)
	b.closeMu.Unlock()
	<-b.done
}

// Dropped reports how many events an async bus discarded because its
// queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus) run() {
	defer close(b.done)
	for event := range b.queue {
		b.dispatch(event)
	}
}

func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	eventType := event.EventType()

	specificSubs := make([]subscription, len(b.subscriptions[eventType]))
	copy(specificSubs, b.subscriptions[eventType])

	wildcardSubs := make([]subscription, len(b.subscriptions["*"]))
	copy(wildcardSubs, b.subscriptions["*"])
	logger := b.logger
	b.mu.RUnlock()

	for _, sub := range specificSubs {
		safeCall(logger, sub.handler, event)
	}
	for _, sub := range wildcardSubs {
		safeCall(logger, sub.handler, event)
	}
}

func safeCall(logger *logging.Logger, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error("event handler panicked",
					"event", event.EventType(),
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				return
			}
			log.Printf("ERROR: event handler panicked for event %s: %v\n%s",
				event.EventType(), r, debug.Stack())
		}
	}()
	handler(event)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}
