package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeLockStore struct {
	values  map[string]string
	setNXs  int
	deletes int
	getErr  error
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: map[string]string{}}
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.setNXs++
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeLockStore) Del(_ context.Context, keys ...string) error {
	f.deletes++
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockAcquireAndRelease(t *testing.T) {
	store := newFakeLockStore()
	lock, err := NewRedisLock(store, "leafline:lock:monitor", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected to acquire free lock")
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if len(store.values) != 0 {
		t.Fatal("expected lock key deleted after release")
	}
}

func TestRedisLockSecondAcquirerIsRefused(t *testing.T) {
	store := newFakeLockStore()
	first, _ := NewRedisLock(store, "leafline:lock:monitor", time.Minute)
	second, _ := NewRedisLock(store, "leafline:lock:monitor", time.Minute)

	if ok, _ := first.Acquire(context.Background()); !ok {
		t.Fatal("first acquire should succeed")
	}
	if ok, _ := second.Acquire(context.Background()); ok {
		t.Fatal("second acquire should be refused while held")
	}
}

func TestRedisLockReleaseLeavesStolenLock(t *testing.T) {
	store := newFakeLockStore()
	lock, _ := NewRedisLock(store, "leafline:lock:monitor", time.Minute)
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire should succeed")
	}

	// Simulate TTL expiry followed by another instance taking the lock.
	store.values["leafline:lock:monitor"] = "someone-else"

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if store.deletes != 0 {
		t.Fatal("release must not delete a lock owned by another instance")
	}
}

func TestRedisLockReleaseToleratesExpiredKey(t *testing.T) {
	store := newFakeLockStore()
	lock, _ := NewRedisLock(store, "leafline:lock:monitor", time.Minute)
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire should succeed")
	}
	delete(store.values, "leafline:lock:monitor")

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release after expiry: %v", err)
	}
}

func TestRedisLockReleaseWithoutAcquireIsNoop(t *testing.T) {
	store := newFakeLockStore()
	lock, _ := NewRedisLock(store, "leafline:lock:monitor", time.Minute)
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if store.deletes != 0 {
		t.Fatal("release without ownership should not touch the store")
	}
}
