package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/pkg/logger"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

// Kind identifies one event type carried on the bus. The set is closed:
// publishers and subscribers agree on these names at compile time.
type Kind string

const (
	KindItemAdded           Kind = "item_added"
	KindItemUpdated         Kind = "item_updated"
	KindItemRemoved         Kind = "item_removed"
	KindPriceChanged        Kind = "price_changed"
	KindBackInStock         Kind = "back_in_stock"
	KindTargetPriceReached  Kind = "target_price_reached"
	KindCartSynced          Kind = "cart_synced"
	KindNotificationCreated Kind = "notification_created"
	KindNotificationRead    Kind = "notification_read"
)

// Event is the envelope delivered to subscribers. Payload carries the
// kind-specific data; subscribers type-assert what they care about.
type Event struct {
	Kind    Kind
	UserID  uuid.UUID
	BookID  uuid.UUID
	Payload any
}

// PricePayload accompanies price_changed and target_price_reached events.
type PricePayload struct {
	OldPriceCents      int
	NewPriceCents      int
	DiscountPercentage int
	Snapshot           types.BookSnapshot
}

// Handler receives one event. Handlers run synchronously on the
// publisher's goroutine; a slow handler slows the publisher.
type Handler func(ctx context.Context, event Event)

// Unsubscribe detaches a previously registered handler. Safe to call
// more than once.
type Unsubscribe func()

// Bus is a synchronous in-process fan-out. A panicking handler is
// recovered and logged so the remaining handlers still run.
type Bus struct {
	logg   *logger.Logger
	mu     sync.RWMutex
	nextID int
	subs   map[Kind]map[int]Handler
}

func NewBus(logg *logger.Logger) *Bus {
	return &Bus{
		logg: logg,
		subs: make(map[Kind]map[int]Handler),
	}
}

// Subscribe registers handler for every kind listed. Passing no kinds
// registers nothing.
func (b *Bus) Subscribe(handler Handler, kinds ...Kind) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	for _, kind := range kinds {
		if b.subs[kind] == nil {
			b.subs[kind] = make(map[int]Handler)
		}
		b.subs[kind][id] = handler
	}

	registered := kinds
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, kind := range registered {
			delete(b.subs[kind], id)
		}
	}
}

// Publish delivers event to every handler subscribed to its kind, in
// registration order where possible. Delivery is best effort: handler
// panics are contained per handler.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[event.Kind]))
	for _, h := range b.subs[event.Kind] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, event)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil && b.logg != nil {
			b.logg.Warn(b.logg.WithFields(ctx, map[string]any{
				"kind":  string(event.Kind),
				"panic": r,
			}), "event handler panicked")
		}
	}()
	h(ctx, event)
}
