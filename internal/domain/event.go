package domain

import (
	"fmt"
	"sync"
	"time"
)

// EventType enumerates the five event kinds defined in spec §4.5.
type EventType string

const (
	EventHealthCheckNeeded EventType = "health_check_needed"
	EventTestScheduled     EventType = "test_scheduled"
	EventWarmupUpdate      EventType = "warmup_update"
	EventRotationTriggered EventType = "rotation_triggered"
	EventScoreUpdated      EventType = "score_updated"
)

// Event carries a type, domain id, timestamp, and a small field set scoped
// to that type. Per §9's redesign note on dynamic payloads, fields are
// named and typed per event rather than a single heterogeneous map.
type Event struct {
	Type      EventType
	DomainID  string
	Timestamp time.Time

	Score        int    // ScoreUpdated
	TargetPool   PoolType // RotationTriggered
	Reason       string // RotationTriggered, HealthCheckNeeded
	Urgent       bool   // HealthCheckNeeded
	Error        string // any
	PoolType     PoolType // HealthCheckNeeded
	CampaignIDs  []string // RotationTriggered
}

// EventHandler processes one published Event. Handlers must be
// non-blocking, or dispatch their own work onto a queue (spec §5).
type EventHandler func(Event)

// EventBus is a single-writer, multi-subscriber fan-out. Publish is
// synchronous in the publishing goroutine: handler panics are caught and
// logged, never allowed to interrupt other handlers or the publisher
// (spec §4.5).
type EventBus interface {
	Publish(e Event)
	Subscribe(t EventType, h EventHandler) SubscriptionID
	Unsubscribe(t EventType, id SubscriptionID)
}

// SubscriptionID identifies a previously registered handler so it can be
// removed with Unsubscribe.
type SubscriptionID uint64

// InMemoryEventBus is the only EventBus implementation; delivery is
// best-effort and not durable across restarts, by design (spec §4.5).
type InMemoryEventBus struct {
	mu          sync.RWMutex
	nextID      SubscriptionID
	subscribers map[EventType][]subscription
	onPanic     func(t EventType, r interface{})
}

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// NewInMemoryEventBus creates an empty bus. onPanic, if non-nil, is called
// whenever a handler panics; pass nil to swallow silently (not recommended
// outside tests).
func NewInMemoryEventBus(onPanic func(t EventType, r interface{})) *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[EventType][]subscription),
		onPanic:     onPanic,
	}
}

// Subscribe registers h to run, in registration order, whenever an event of
// type t is published. Safe for concurrent use with Publish and Unsubscribe.
func (b *InMemoryEventBus) Subscribe(t EventType, h EventHandler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subscribers[t] = append(b.subscribers[t], subscription{id: id, handler: h})
	return id
}

// Unsubscribe removes the handler previously returned by Subscribe as id.
func (b *InMemoryEventBus) Unsubscribe(t EventType, id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[t]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish invokes every handler registered for e.Type, in registration
// order, within the calling goroutine. A handler's panic is recovered and
// reported via onPanic without affecting the remaining handlers.
func (b *InMemoryEventBus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[e.Type]))
	copy(subs, b.subscribers[e.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		b.invoke(e, s.handler)
	}
}

func (b *InMemoryEventBus) invoke(e Event, h EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			if b.onPanic != nil {
				b.onPanic(e.Type, r)
			}
		}
	}()
	h(e)
}

// String renders an Event for logging.
func (e Event) String() string {
	return fmt.Sprintf("%s domain=%s reason=%q", e.Type, e.DomainID, e.Reason)
}
