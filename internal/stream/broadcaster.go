// Package stream fans state-change events out to subscribers. Delivery is
// best-effort per subscriber: a stalled consumer loses events rather than
// stalling the update loop.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/minewatch/pitguard/internal/models"
)

// subscriberBuffer bounds each subscription. One tick emits at most a few
// events per zone, so this covers many ticks of slack.
const subscriberBuffer = 100

type Broadcaster struct {
	subscribers map[uint64]chan models.StreamEvent
	nextID      atomic.Uint64
	mu          sync.RWMutex

	// onSubscribe lets the update loop start lazily with the first
	// subscriber. Called outside the lock.
	onSubscribe func()
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan models.StreamEvent),
	}
}

// OnSubscribe registers a hook invoked after each new subscription.
func (b *Broadcaster) OnSubscribe(fn func()) {
	b.mu.Lock()
	b.onSubscribe = fn
	b.mu.Unlock()
}

// Subscribe registers a new consumer. The snapshot events are queued
// first, so the consumer can render current state before any live event
// arrives.
func (b *Broadcaster) Subscribe(snapshot ...models.StreamEvent) (uint64, chan models.StreamEvent) {
	id := b.nextID.Add(1)
	ch := make(chan models.StreamEvent, subscriberBuffer)
	for _, e := range snapshot {
		ch <- e
	}

	b.mu.Lock()
	b.subscribers[id] = ch
	hook := b.onSubscribe
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber in publish order,
// skipping any whose buffer is full.
func (b *Broadcaster) Publish(e models.StreamEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Slow subscriber; drop rather than block the loop.
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, letting their streams exit
// gracefully.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
