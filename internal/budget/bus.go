package budget

import (
	"context"
	"sync"

	"budgetbee/internal/core"
)

// TransactionEvent reports a committed ledger mutation.
type TransactionEvent struct {
	CategoryID core.CategoryID
	Amount     core.Money
	Type       core.TransactionType
	Action     core.Action
}

// Handler receives published events.
type Handler func(ctx context.Context, ev TransactionEvent)

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus broadcasts transaction events to its subscribers. Publish calls
// every subscriber synchronously, in subscription order; there is no queue
// and no replay for late subscribers.
type EventBus struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers h and returns a function that removes it.
func (b *EventBus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to the subscribers registered when the call started.
func (b *EventBus) Publish(ctx context.Context, ev TransactionEvent) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(ctx, ev)
	}
}

// Len returns the number of current subscribers.
func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
