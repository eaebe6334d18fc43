package monitor

import (
	"context"
	"errors"
	"testing"
)

type fakeCartPurger struct {
	purged int64
	err    error
	calls  int
}

func (f *fakeCartPurger) PurgeExpired(context.Context) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.purged, nil
}

func TestCartExpiryJobPurgesExpiredLines(t *testing.T) {
	purger := &fakeCartPurger{purged: 7}
	job, err := NewCartExpiryJob(CartExpiryJobParams{
		Logger: testLogger(),
		Cart:   purger,
	})
	if err != nil {
		t.Fatalf("NewCartExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if purger.calls != 1 {
		t.Fatalf("expected one purge call, got %d", purger.calls)
	}
}

func TestCartExpiryJobPropagatesErrors(t *testing.T) {
	job, err := NewCartExpiryJob(CartExpiryJobParams{
		Logger: testLogger(),
		Cart:   &fakeCartPurger{err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("NewCartExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewCartExpiryJobRequiresCart(t *testing.T) {
	if _, err := NewCartExpiryJob(CartExpiryJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without cart service")
	}
}
