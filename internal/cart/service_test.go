package cart

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/leafline-books/leafline-backend/internal/catalog"
	"github.com/leafline-books/leafline-backend/internal/enrichment"
	"github.com/leafline-books/leafline-backend/internal/events"
	"github.com/leafline-books/leafline-backend/pkg/config"
	"github.com/leafline-books/leafline-backend/pkg/db/models"
	"github.com/leafline-books/leafline-backend/pkg/enums"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/logger"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

type fakeRepo struct {
	createFn     func(ctx context.Context, item *models.CartItem) error
	findByIDFn   func(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error)
	findActiveFn func(ctx context.Context, userID, bookID uuid.UUID) (*models.CartItem, error)
	saveFn       func(ctx context.Context, item *models.CartItem) error
	deleteFn     func(ctx context.Context, userID, itemID uuid.UUID) (int64, error)
	listFn       func(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	saved        []*models.CartItem
}

func (f *fakeRepo) Create(ctx context.Context, item *models.CartItem) error {
	if f.createFn != nil {
		return f.createFn(ctx, item)
	}
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, userID, itemID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindActiveByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (*models.CartItem, error) {
	if f.findActiveFn != nil {
		return f.findActiveFn(ctx, userID, bookID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) Save(ctx context.Context, item *models.CartItem) error {
	f.saved = append(f.saved, item)
	if f.saveFn != nil {
		return f.saveFn(ctx, item)
	}
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, userID, itemID uuid.UUID) (int64, error) {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, userID, itemID)
	}
	return 0, nil
}

func (f *fakeRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	if f.listFn != nil {
		return f.listFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type fakeReader struct {
	getFn func(ctx context.Context, id uuid.UUID) (*catalog.BookDTO, error)
}

func (f *fakeReader) GetBookByID(ctx context.Context, id uuid.UUID) (*catalog.BookDTO, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return &catalog.BookDTO{ID: id, Title: "Dune", PriceCents: 1800, OriginalPriceCents: 1800, IsAvailable: true, Stock: 5}, nil
}

type fixture struct {
	svc    Service
	repo   *fakeRepo
	reader *fakeReader
	bus    *events.Bus
}

func newFixture(t *testing.T, repo *fakeRepo) *fixture {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "cart-test", Level: zerolog.Disabled, Output: io.Discard})
	reader := &fakeReader{}
	engine, err := enrichment.NewEngine(reader, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	bus := events.NewBus(logg)
	svc, err := NewService(ServiceParams{
		Repo:    repo,
		Catalog: reader,
		Engine:  engine,
		Bus:     bus,
		Logger:  logg,
		Config:  config.CartConfig{CacheTTL: time.Minute, MaxQuantity: 10, UserTTLDays: 30, GuestTTLDays: 7},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, repo: repo, reader: reader, bus: bus}
}

func TestService_AddNewLine(t *testing.T) {
	var created *models.CartItem
	repo := &fakeRepo{
		createFn: func(_ context.Context, item *models.CartItem) error {
			created = item
			return nil
		},
	}
	fx := newFixture(t, repo)

	dto, err := fx.svc.Add(context.Background(), uuid.New(), uuid.New(), AddInput{Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if created == nil || created.Quantity != 2 {
		t.Fatalf("expected inserted line with quantity 2, got %+v", created)
	}
	if dto.PriceAtAddCents != 1800 || dto.CurrentPriceCents != 1800 {
		t.Fatalf("expected prices locked at add, got %+v", dto)
	}
	if created.ExpiresAt.IsZero() {
		t.Fatal("expected an expiry stamp")
	}
}

func TestService_AddAgainIncrementsQuantity(t *testing.T) {
	userID, bookID := uuid.New(), uuid.New()
	existing := &models.CartItem{ID: uuid.New(), UserID: userID, BookID: bookID, Quantity: 2}
	repo := &fakeRepo{
		findActiveFn: func(context.Context, uuid.UUID, uuid.UUID) (*models.CartItem, error) {
			return existing, nil
		},
	}
	fx := newFixture(t, repo)

	dto, err := fx.svc.Add(context.Background(), userID, bookID, AddInput{Quantity: 3})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if dto.Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", dto.Quantity)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("expected line saved once, got %d", len(repo.saved))
	}
}

func TestService_AddBoundsQuantity(t *testing.T) {
	fx := newFixture(t, &fakeRepo{})

	// Per-line maximum.
	if _, err := fx.svc.Add(context.Background(), uuid.New(), uuid.New(), AddInput{Quantity: 11}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Stock bound.
	fx.reader.getFn = func(_ context.Context, id uuid.UUID) (*catalog.BookDTO, error) {
		return &catalog.BookDTO{ID: id, PriceCents: 1800, IsAvailable: true, Stock: 2}, nil
	}
	if _, err := fx.svc.Add(context.Background(), uuid.New(), uuid.New(), AddInput{Quantity: 3}); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected stock conflict, got %v", err)
	}
}

func TestService_AddOutOfStockBook(t *testing.T) {
	fx := newFixture(t, &fakeRepo{})
	fx.reader.getFn = func(_ context.Context, id uuid.UUID) (*catalog.BookDTO, error) {
		return &catalog.BookDTO{ID: id, PriceCents: 1800, IsAvailable: false, Stock: 0}, nil
	}

	_, err := fx.svc.Add(context.Background(), uuid.New(), uuid.New(), AddInput{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestService_UpdateQuantityUnknownItem(t *testing.T) {
	fx := newFixture(t, &fakeRepo{})

	_, err := fx.svc.UpdateQuantity(context.Background(), uuid.New(), uuid.New(), 2)
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_GetEnrichesStatusesAndTotals(t *testing.T) {
	userID := uuid.New()
	cheaper, gone, steady := uuid.New(), uuid.New(), uuid.New()
	repo := &fakeRepo{
		listFn: func(context.Context, uuid.UUID) ([]models.CartItem, error) {
			return []models.CartItem{
				{ID: uuid.New(), UserID: userID, BookID: cheaper, Quantity: 2, PriceAtAddCents: 2000, CurrentPriceCents: 2000, BookData: types.BookSnapshot{PriceCents: 2000, IsAvailable: true}},
				{ID: uuid.New(), UserID: userID, BookID: gone, Quantity: 1, PriceAtAddCents: 1500, CurrentPriceCents: 1500, BookData: types.BookSnapshot{PriceCents: 1500, IsAvailable: true}},
				{ID: uuid.New(), UserID: userID, BookID: steady, Quantity: 1, PriceAtAddCents: 1000, CurrentPriceCents: 1000, SavedForLater: true, BookData: types.BookSnapshot{PriceCents: 1000, IsAvailable: true}},
			}, nil
		},
	}
	fx := newFixture(t, repo)
	fx.reader.getFn = func(_ context.Context, id uuid.UUID) (*catalog.BookDTO, error) {
		switch id {
		case cheaper:
			return &catalog.BookDTO{ID: id, PriceCents: 1600, OriginalPriceCents: 2000, IsAvailable: true, Stock: 5}, nil
		case gone:
			return &catalog.BookDTO{ID: id, PriceCents: 1500, IsAvailable: false, Stock: 0}, nil
		default:
			return &catalog.BookDTO{ID: id, PriceCents: 1000, IsAvailable: true, Stock: 5}, nil
		}
	}

	view, err := fx.svc.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(view.Items) != 2 || len(view.SavedForLater) != 1 {
		t.Fatalf("unexpected split: %d active %d saved", len(view.Items), len(view.SavedForLater))
	}
	if view.Items[0].Status != enums.CartItemStatusPriceChanged {
		t.Fatalf("expected price_changed, got %s", view.Items[0].Status)
	}
	if view.Items[1].Status != enums.CartItemStatusOutOfStock {
		t.Fatalf("expected out_of_stock, got %s", view.Items[1].Status)
	}
	// Out-of-stock lines are excluded from the subtotal.
	if view.SubtotalCents != 1600*2 {
		t.Fatalf("unexpected subtotal %d", view.SubtotalCents)
	}
	if view.ItemCount != 3 {
		t.Fatalf("unexpected item count %d", view.ItemCount)
	}
}

func TestService_GetUsesCache(t *testing.T) {
	userID := uuid.New()
	calls := 0
	repo := &fakeRepo{
		listFn: func(context.Context, uuid.UUID) ([]models.CartItem, error) {
			calls++
			return nil, nil
		},
	}
	fx := newFixture(t, repo)

	for i := 0; i < 3; i++ {
		if _, err := fx.svc.Get(context.Background(), userID); err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 store read, got %d", calls)
	}
}

func TestService_AddInvalidatesCachedView(t *testing.T) {
	userID := uuid.New()
	calls := 0
	repo := &fakeRepo{
		listFn: func(context.Context, uuid.UUID) ([]models.CartItem, error) {
			calls++
			return nil, nil
		},
	}
	fx := newFixture(t, repo)

	if _, err := fx.svc.Get(context.Background(), userID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := fx.svc.Add(context.Background(), userID, uuid.New(), AddInput{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := fx.svc.Get(context.Background(), userID); err != nil {
		t.Fatalf("get after add: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected cache invalidated by the add, got %d reads", calls)
	}
}

func TestService_MoveToCartMergesQuantities(t *testing.T) {
	userID, bookID := uuid.New(), uuid.New()
	saved := &models.CartItem{ID: uuid.New(), UserID: userID, BookID: bookID, Quantity: 4, SavedForLater: true}
	active := &models.CartItem{ID: uuid.New(), UserID: userID, BookID: bookID, Quantity: 8}
	deleted := 0
	repo := &fakeRepo{
		findByIDFn: func(context.Context, uuid.UUID, uuid.UUID) (*models.CartItem, error) {
			return saved, nil
		},
		findActiveFn: func(context.Context, uuid.UUID, uuid.UUID) (*models.CartItem, error) {
			return active, nil
		},
		deleteFn: func(context.Context, uuid.UUID, uuid.UUID) (int64, error) {
			deleted++
			return 1, nil
		},
	}
	fx := newFixture(t, repo)

	dto, err := fx.svc.MoveToCart(context.Background(), userID, saved.ID)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	// 8 + 4 clamps at the per-line maximum.
	if dto.Quantity != 10 {
		t.Fatalf("expected merged quantity clamped to 10, got %d", dto.Quantity)
	}
	if deleted != 1 {
		t.Fatal("expected the saved line deleted after the merge")
	}
}

func TestService_SaveForLaterPublishes(t *testing.T) {
	userID := uuid.New()
	line := &models.CartItem{ID: uuid.New(), UserID: userID, BookID: uuid.New(), Quantity: 1}
	repo := &fakeRepo{
		findByIDFn: func(context.Context, uuid.UUID, uuid.UUID) (*models.CartItem, error) {
			return line, nil
		},
	}
	fx := newFixture(t, repo)

	updated := 0
	fx.bus.Subscribe(func(context.Context, events.Event) { updated++ }, events.KindItemUpdated)

	dto, err := fx.svc.SaveForLater(context.Background(), userID, line.ID)
	if err != nil {
		t.Fatalf("save for later: %v", err)
	}
	if !dto.SavedForLater || updated != 1 {
		t.Fatalf("expected saved line and event, got saved=%v events=%d", dto.SavedForLater, updated)
	}
}

func TestService_RemoveFailureWithoutQueue(t *testing.T) {
	repo := &fakeRepo{
		deleteFn: func(context.Context, uuid.UUID, uuid.UUID) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}
	fx := newFixture(t, repo)

	err := fx.svc.Remove(context.Background(), uuid.New(), uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestService_GetPersistsObservedPriceChange(t *testing.T) {
	userID := uuid.New()
	changed, steady := uuid.New(), uuid.New()
	repo := &fakeRepo{
		listFn: func(context.Context, uuid.UUID) ([]models.CartItem, error) {
			return []models.CartItem{
				{ID: uuid.New(), UserID: userID, BookID: changed, Quantity: 1, PriceAtAddCents: 2000, CurrentPriceCents: 2000, BookData: types.BookSnapshot{PriceCents: 2000, IsAvailable: true}},
				{ID: uuid.New(), UserID: userID, BookID: steady, Quantity: 1, PriceAtAddCents: 1000, CurrentPriceCents: 1000, BookData: types.BookSnapshot{PriceCents: 1000, IsAvailable: true}},
			}, nil
		},
	}
	fx := newFixture(t, repo)
	fx.reader.getFn = func(_ context.Context, id uuid.UUID) (*catalog.BookDTO, error) {
		if id == changed {
			return &catalog.BookDTO{ID: id, PriceCents: 1600, OriginalPriceCents: 2000, IsAvailable: true, Stock: 5}, nil
		}
		return &catalog.BookDTO{ID: id, PriceCents: 1000, OriginalPriceCents: 1000, IsAvailable: true, Stock: 5}, nil
	}

	if _, err := fx.svc.Get(context.Background(), userID); err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(repo.saved) != 1 {
		t.Fatalf("expected only the changed line written back, got %d", len(repo.saved))
	}
	line := repo.saved[0]
	if line.BookID != changed || line.CurrentPriceCents != 1600 || line.BookData.PriceCents != 1600 {
		t.Fatalf("expected stored snapshot updated to 1600, got %+v", line)
	}
}
