package events

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leafline-books/leafline-backend/pkg/logger"
)

func newTestBus() *Bus {
	return NewBus(logger.New(logger.Options{
		ServiceName: "events-test",
		Level:       zerolog.Disabled,
		Output:      io.Discard,
	}))
}

func TestBus_PublishDeliversToSubscribedKind(t *testing.T) {
	bus := newTestBus()

	var got []Event
	bus.Subscribe(func(_ context.Context, e Event) {
		got = append(got, e)
	}, KindItemAdded)

	userID := uuid.New()
	bus.Publish(context.Background(), Event{Kind: KindItemAdded, UserID: userID})
	bus.Publish(context.Background(), Event{Kind: KindItemRemoved, UserID: userID})

	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Kind != KindItemAdded || got[0].UserID != userID {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestBus_SubscribeMultipleKinds(t *testing.T) {
	bus := newTestBus()

	var got []Kind
	bus.Subscribe(func(_ context.Context, e Event) {
		got = append(got, e.Kind)
	}, KindPriceChanged, KindBackInStock)

	bus.Publish(context.Background(), Event{Kind: KindPriceChanged})
	bus.Publish(context.Background(), Event{Kind: KindBackInStock})
	bus.Publish(context.Background(), Event{Kind: KindCartSynced})

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d (%v)", len(got), got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := newTestBus()

	calls := 0
	unsubscribe := bus.Subscribe(func(context.Context, Event) {
		calls++
	}, KindItemUpdated)

	bus.Publish(context.Background(), Event{Kind: KindItemUpdated})
	unsubscribe()
	bus.Publish(context.Background(), Event{Kind: KindItemUpdated})
	unsubscribe()

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestBus_PanicInHandlerDoesNotStopFanOut(t *testing.T) {
	bus := newTestBus()

	bus.Subscribe(func(context.Context, Event) {
		panic("boom")
	}, KindNotificationCreated)

	delivered := false
	bus.Subscribe(func(context.Context, Event) {
		delivered = true
	}, KindNotificationCreated)

	bus.Publish(context.Background(), Event{Kind: KindNotificationCreated})

	if !delivered {
		t.Fatal("expected the second handler to run after the first panicked")
	}
}

func TestBus_PayloadRoundTrip(t *testing.T) {
	bus := newTestBus()

	var got PricePayload
	bus.Subscribe(func(_ context.Context, e Event) {
		payload, ok := e.Payload.(PricePayload)
		if !ok {
			t.Fatalf("unexpected payload type %T", e.Payload)
		}
		got = payload
	}, KindTargetPriceReached)

	bus.Publish(context.Background(), Event{
		Kind: KindTargetPriceReached,
		Payload: PricePayload{
			OldPriceCents:      2000,
			NewPriceCents:      1500,
			DiscountPercentage: 25,
		},
	})

	if got.NewPriceCents != 1500 || got.DiscountPercentage != 25 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}
