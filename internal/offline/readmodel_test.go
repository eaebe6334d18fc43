package offline

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestReadModel_StoreAndLoad(t *testing.T) {
	stamp := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	model := NewReadModel[[]string](func() time.Time { return stamp })
	userID := uuid.New()

	model.Store(userID, []string{"dune"})

	view, storedAt, ok := model.Load(userID)
	if !ok || len(view) != 1 || view[0] != "dune" {
		t.Fatalf("unexpected view %v ok=%v", view, ok)
	}
	if !storedAt.Equal(stamp) {
		t.Fatalf("unexpected storedAt %v", storedAt)
	}
}

func TestReadModel_LoadMissingUser(t *testing.T) {
	model := NewReadModel[[]string](nil)
	if _, _, ok := model.Load(uuid.New()); ok {
		t.Fatal("expected miss")
	}
}

func TestReadModel_MutateAppliesLocally(t *testing.T) {
	model := NewReadModel[[]string](nil)
	userID := uuid.New()

	model.Store(userID, []string{"dune"})
	model.Mutate(userID, func(view []string) []string {
		return append(view, "hyperion")
	})

	view, _, _ := model.Load(userID)
	if len(view) != 2 || view[1] != "hyperion" {
		t.Fatalf("unexpected view %v", view)
	}

	// Mutating an unknown user is a no-op rather than creating a view.
	other := uuid.New()
	model.Mutate(other, func(view []string) []string { return append(view, "x") })
	if _, _, ok := model.Load(other); ok {
		t.Fatal("expected no view for unknown user")
	}
}

func TestReadModel_Drop(t *testing.T) {
	model := NewReadModel[int](nil)
	userID := uuid.New()

	model.Store(userID, 1)
	model.Drop(userID)

	if _, _, ok := model.Load(userID); ok {
		t.Fatal("expected miss after drop")
	}
}
