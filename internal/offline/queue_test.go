package offline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leafline-books/leafline-backend/pkg/logger"
)

type fakeStore struct {
	lists   map[string][]string
	pushErr error
	readErr error
	delErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{lists: map[string][]string{}}
}

func (f *fakeStore) RPush(_ context.Context, key string, values ...any) (int64, error) {
	if f.pushErr != nil {
		return 0, f.pushErr
	}
	for _, v := range values {
		f.lists[key] = append(f.lists[key], v.(string))
	}
	return int64(len(f.lists[key])), nil
}

func (f *fakeStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if stop == -1 {
		return append([]string(nil), f.lists[key]...), nil
	}
	return nil, errors.New("unsupported range")
}

func (f *fakeStore) LLen(_ context.Context, key string) (int64, error) {
	return int64(len(f.lists[key])), nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if f.delErr != nil {
		return f.delErr
	}
	for _, key := range keys {
		delete(f.lists, key)
	}
	return nil
}

func (f *fakeStore) OfflineQueueKey(userID string) string {
	return "leafline:offline_queue:" + userID
}

func newTestQueue(t *testing.T, store *fakeStore) *Queue {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "offline-test", Level: zerolog.Disabled, Output: io.Discard})
	queue, err := NewQueue(store, "wishlist", logg, func() time.Time {
		return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	return queue
}

func TestQueue_EnqueueStampsQueuedAt(t *testing.T) {
	store := newFakeStore()
	queue := newTestQueue(t, store)
	userID := uuid.New()

	err := queue.Enqueue(context.Background(), Operation{
		Kind:   OpWishlistAdd,
		UserID: userID,
		BookID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	entries := store.lists[store.OfflineQueueKey("wishlist:"+userID.String())]
	if len(entries) != 1 {
		t.Fatalf("expected 1 queued entry, got %d", len(entries))
	}
	var op Operation
	if err := json.Unmarshal([]byte(entries[0]), &op); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if op.QueuedAt.IsZero() {
		t.Fatal("expected QueuedAt to be stamped")
	}
}

func TestQueue_EnqueueRequiresUser(t *testing.T) {
	queue := newTestQueue(t, newFakeStore())
	if err := queue.Enqueue(context.Background(), Operation{Kind: OpCartAdd}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestQueue_ReplayAppliesFIFOAndClears(t *testing.T) {
	store := newFakeStore()
	queue := newTestQueue(t, store)
	userID := uuid.New()

	first, second := uuid.New(), uuid.New()
	for _, bookID := range []uuid.UUID{first, second} {
		if err := queue.Enqueue(context.Background(), Operation{Kind: OpWishlistAdd, UserID: userID, BookID: bookID}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	var applied []uuid.UUID
	report, err := queue.Replay(context.Background(), userID, func(_ context.Context, op Operation) error {
		applied = append(applied, op.BookID)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if report.Applied != 2 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(applied) != 2 || applied[0] != first || applied[1] != second {
		t.Fatalf("expected FIFO order [%s %s], got %v", first, second, applied)
	}
	if pending, _ := queue.Pending(context.Background(), userID); pending != 0 {
		t.Fatalf("expected cleared queue, got %d pending", pending)
	}
}

func TestQueue_ReplayClearsEvenWhenOperationsFail(t *testing.T) {
	store := newFakeStore()
	queue := newTestQueue(t, store)
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		if err := queue.Enqueue(context.Background(), Operation{Kind: OpCartAdd, UserID: userID, BookID: uuid.New()}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	calls := 0
	report, err := queue.Replay(context.Background(), userID, func(context.Context, Operation) error {
		calls++
		if calls == 2 {
			return errors.New("store unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if calls != 3 {
		t.Fatalf("expected all 3 operations attempted, got %d", calls)
	}
	if report.Applied != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if pending, _ := queue.Pending(context.Background(), userID); pending != 0 {
		t.Fatal("expected queue cleared despite the failure")
	}
}

func TestQueue_ReplayDropsUndecodableEntries(t *testing.T) {
	store := newFakeStore()
	queue := newTestQueue(t, store)
	userID := uuid.New()
	key := store.OfflineQueueKey("wishlist:" + userID.String())
	store.lists[key] = []string{"not json"}

	report, err := queue.Replay(context.Background(), userID, func(context.Context, Operation) error {
		t.Fatal("apply should not be called for undecodable entries")
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if report.Dropped != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}
