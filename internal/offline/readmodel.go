package offline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReadModel keeps the last successfully loaded view per user so reads
// can still be served while the primary store is unreachable. Queued
// mutations are applied to it optimistically; the next successful load
// replaces the whole view.
type ReadModel[T any] struct {
	now func() time.Time

	mu    sync.RWMutex
	views map[uuid.UUID]readModelEntry[T]
}

type readModelEntry[T any] struct {
	view     T
	storedAt time.Time
}

func NewReadModel[T any](now func() time.Time) *ReadModel[T] {
	if now == nil {
		now = time.Now
	}
	return &ReadModel[T]{
		now:   now,
		views: make(map[uuid.UUID]readModelEntry[T]),
	}
}

// Store replaces the user's last-known-good view.
func (m *ReadModel[T]) Store(userID uuid.UUID, view T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[userID] = readModelEntry[T]{view: view, storedAt: m.now()}
}

// Load returns the stored view and when it was captured.
func (m *ReadModel[T]) Load(userID uuid.UUID) (T, time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.views[userID]
	if !ok {
		var zero T
		return zero, time.Time{}, false
	}
	return entry.view, entry.storedAt, true
}

// Mutate applies fn to the stored view in place, so a queued-but-not-yet
// replayed operation is visible to local reads. A user without a stored
// view is left untouched.
func (m *ReadModel[T]) Mutate(userID uuid.UUID, fn func(view T) T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.views[userID]
	if !ok {
		return
	}
	entry.view = fn(entry.view)
	entry.storedAt = m.now()
	m.views[userID] = entry
}

// Drop removes the user's stored view, typically after a successful
// replay made it stale.
func (m *ReadModel[T]) Drop(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.views, userID)
}
