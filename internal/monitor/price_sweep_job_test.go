package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leafline-books/leafline-backend/internal/catalog"
	"github.com/leafline-books/leafline-backend/internal/enrichment"
	"github.com/leafline-books/leafline-backend/internal/events"
	"github.com/leafline-books/leafline-backend/internal/notifications"
	"github.com/leafline-books/leafline-backend/pkg/db/models"
	"github.com/leafline-books/leafline-backend/pkg/enums"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/pagination"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

type fakeSweepRepo struct {
	listFn   func(ctx context.Context, after *pagination.Cursor, limit int) ([]models.WishlistItem, *pagination.Cursor, error)
	updateFn func(ctx context.Context, item *models.WishlistItem, expectedVersion int) error

	listCalls int
	updates   []*models.WishlistItem
}

func (f *fakeSweepRepo) ListMonitorBatch(ctx context.Context, after *pagination.Cursor, limit int) ([]models.WishlistItem, *pagination.Cursor, error) {
	f.listCalls++
	return f.listFn(ctx, after, limit)
}

func (f *fakeSweepRepo) UpdateVersioned(ctx context.Context, item *models.WishlistItem, expectedVersion int) error {
	if f.updateFn != nil {
		if err := f.updateFn(ctx, item, expectedVersion); err != nil {
			return err
		}
	}
	f.updates = append(f.updates, item)
	item.Version = expectedVersion + 1
	return nil
}

type fakeEmitter struct {
	inputs []notifications.EmitInput
	err    error
}

func (f *fakeEmitter) Emit(_ context.Context, input notifications.EmitInput) (*models.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &models.Notification{ID: uuid.New()}, nil
}

type fakeSweepCatalog struct {
	getFn func(ctx context.Context, id uuid.UUID) (*catalog.BookDTO, error)
}

func (f *fakeSweepCatalog) GetBookByID(ctx context.Context, id uuid.UUID) (*catalog.BookDTO, error) {
	return f.getFn(ctx, id)
}

func sweepNow() time.Time {
	return time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
}

func monitoredItem(bookID uuid.UUID) models.WishlistItem {
	return models.WishlistItem{
		ID:     uuid.New(),
		UserID: uuid.New(),
		BookID: bookID,
		BookData: types.BookSnapshot{
			Title:              "The Dispossessed",
			AuthorName:         "Ursula K. Le Guin",
			PriceCents:         2000,
			OriginalPriceCents: 2000,
			IsAvailable:        true,
			Stock:              4,
		},
		Notifications: types.NotificationPrefs{PriceDrops: true, BackInStock: true},
		Status:        enums.WishlistStatusAvailable,
		Version:       1,
	}
}

func singleBatchRepo(items ...models.WishlistItem) *fakeSweepRepo {
	served := false
	return &fakeSweepRepo{
		listFn: func(context.Context, *pagination.Cursor, int) ([]models.WishlistItem, *pagination.Cursor, error) {
			if served {
				return nil, nil, nil
			}
			served = true
			return items, nil, nil
		},
	}
}

type sweepFixture struct {
	repo    *fakeSweepRepo
	emitter *fakeEmitter
	bus     *events.Bus
	job     Job

	published []events.Event
}

func newSweepFixture(t *testing.T, repo *fakeSweepRepo, reader catalog.Reader) *sweepFixture {
	t.Helper()
	engine, err := enrichment.NewEngine(reader, sweepNow)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	fx := &sweepFixture{
		repo:    repo,
		emitter: &fakeEmitter{},
		bus:     events.NewBus(testLogger()),
	}
	fx.bus.Subscribe(func(_ context.Context, event events.Event) {
		fx.published = append(fx.published, event)
	}, events.KindPriceChanged, events.KindBackInStock, events.KindTargetPriceReached)

	fx.job, err = NewPriceSweepJob(PriceSweepJobParams{
		Logger:     testLogger(),
		Repository: repo,
		Engine:     engine,
		Emitter:    fx.emitter,
		Bus:        fx.bus,
		BatchSize:  10,
		HistoryCap: 5,
	})
	if err != nil {
		t.Fatalf("NewPriceSweepJob: %v", err)
	}
	return fx
}

func catalogReturning(dto catalog.BookDTO) catalog.Reader {
	return &fakeSweepCatalog{
		getFn: func(_ context.Context, id uuid.UUID) (*catalog.BookDTO, error) {
			out := dto
			out.ID = id
			return &out, nil
		},
	}
}

func TestPriceSweepJob_PriceDropNotifiesAndPersists(t *testing.T) {
	bookID := uuid.New()
	item := monitoredItem(bookID)
	repo := singleBatchRepo(item)
	fx := newSweepFixture(t, repo, catalogReturning(catalog.BookDTO{
		Title:              "The Dispossessed",
		AuthorName:         "Ursula K. Le Guin",
		PriceCents:         1500,
		OriginalPriceCents: 2000,
		IsAvailable:        true,
		Stock:              4,
	}))

	if err := fx.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(repo.updates) != 1 {
		t.Fatalf("expected 1 persisted item, got %d", len(repo.updates))
	}
	saved := repo.updates[0]
	if saved.BookData.PriceCents != 1500 {
		t.Fatalf("expected snapshot price 1500, got %d", saved.BookData.PriceCents)
	}
	if saved.Status != enums.WishlistStatusPriceDropped {
		t.Fatalf("expected status price_dropped, got %s", saved.Status)
	}
	if len(saved.PriceHistory) != 1 {
		t.Fatalf("expected one history entry, got %d", len(saved.PriceHistory))
	}
	if saved.PriceHistory[0].Source != enrichment.Source {
		t.Fatalf("expected history source %q, got %q", enrichment.Source, saved.PriceHistory[0].Source)
	}
	if saved.LastCheckedAt == nil || !saved.LastCheckedAt.Equal(sweepNow()) {
		t.Fatalf("expected last_checked_at %s, got %v", sweepNow(), saved.LastCheckedAt)
	}
	if saved.LastNotifiedAt == nil {
		t.Fatal("expected last_notified_at to be stamped")
	}

	if len(fx.emitter.inputs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(fx.emitter.inputs))
	}
	emitted := fx.emitter.inputs[0]
	if emitted.Category != enums.CategoryPriceDrop {
		t.Fatalf("expected price drop category, got %s", emitted.Category)
	}
	if emitted.Data["newPrice"] != "$15.00" || emitted.Data["oldPrice"] != "$20.00" {
		t.Fatalf("unexpected price data: %v", emitted.Data)
	}
	if emitted.Data["discount"] != "25" {
		t.Fatalf("expected 25%% discount, got %q", emitted.Data["discount"])
	}

	if len(fx.published) != 1 {
		t.Fatalf("expected 1 bus event, got %d", len(fx.published))
	}
	if fx.published[0].Kind != events.KindPriceChanged {
		t.Fatalf("expected price_changed event, got %s", fx.published[0].Kind)
	}
	payload, ok := fx.published[0].Payload.(events.PricePayload)
	if !ok {
		t.Fatalf("expected PricePayload, got %T", fx.published[0].Payload)
	}
	if payload.OldPriceCents != 2000 || payload.NewPriceCents != 1500 {
		t.Fatalf("unexpected payload prices: %+v", payload)
	}
}

func TestPriceSweepJob_TargetPriceEmitsBothNotifications(t *testing.T) {
	bookID := uuid.New()
	item := monitoredItem(bookID)
	target := 1600
	item.TargetPriceCents = &target
	repo := singleBatchRepo(item)
	fx := newSweepFixture(t, repo, catalogReturning(catalog.BookDTO{
		Title:       "The Dispossessed",
		AuthorName:  "Ursula K. Le Guin",
		PriceCents:  1500,
		IsAvailable: true,
		Stock:       4,
	}))

	if err := fx.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	categories := make(map[enums.NotificationCategory]bool)
	for _, input := range fx.emitter.inputs {
		categories[input.Category] = true
	}
	if !categories[enums.CategoryPriceDrop] || !categories[enums.CategoryTargetPriceReached] {
		t.Fatalf("expected price drop and target categories, got %v", categories)
	}
}

func TestPriceSweepJob_BackInStockHonorsPrefs(t *testing.T) {
	bookID := uuid.New()
	item := monitoredItem(bookID)
	item.BookData.IsAvailable = false
	item.BookData.Stock = 0
	item.Status = enums.WishlistStatusOutOfStock
	item.Notifications.BackInStock = false
	repo := singleBatchRepo(item)
	fx := newSweepFixture(t, repo, catalogReturning(catalog.BookDTO{
		Title:       "The Dispossessed",
		AuthorName:  "Ursula K. Le Guin",
		PriceCents:  2000,
		IsAvailable: true,
		Stock:       3,
	}))

	if err := fx.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fx.emitter.inputs) != 0 {
		t.Fatalf("expected no notifications with back_in_stock opted out, got %d", len(fx.emitter.inputs))
	}
	// In-process listeners still hear about the transition.
	if len(fx.published) != 1 || fx.published[0].Kind != events.KindBackInStock {
		t.Fatalf("expected back_in_stock bus event, got %v", fx.published)
	}
	if repo.updates[0].Status != enums.WishlistStatusAvailable {
		t.Fatalf("expected status available, got %s", repo.updates[0].Status)
	}
	if repo.updates[0].LastNotifiedAt != nil {
		t.Fatal("last_notified_at must stay unset when nothing was emitted")
	}
}

func TestPriceSweepJob_MissingBookMarksDiscontinued(t *testing.T) {
	item := monitoredItem(uuid.New())
	repo := singleBatchRepo(item)
	fx := newSweepFixture(t, repo, &fakeSweepCatalog{
		getFn: func(context.Context, uuid.UUID) (*catalog.BookDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
		},
	})

	if err := fx.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(repo.updates) != 1 {
		t.Fatalf("expected 1 persisted item, got %d", len(repo.updates))
	}
	saved := repo.updates[0]
	if saved.Status != enums.WishlistStatusDiscontinued {
		t.Fatalf("expected status discontinued, got %s", saved.Status)
	}
	if saved.BookData.IsAvailable || saved.BookData.Stock != 0 {
		t.Fatalf("expected snapshot forced unavailable, got %+v", saved.BookData)
	}
	if len(fx.emitter.inputs) != 0 {
		t.Fatalf("expected no notifications for a vanished book, got %d", len(fx.emitter.inputs))
	}
}

func TestPriceSweepJob_StaleVersionSkipsNotification(t *testing.T) {
	item := monitoredItem(uuid.New())
	repo := singleBatchRepo(item)
	repo.updateFn = func(context.Context, *models.WishlistItem, int) error {
		return gorm.ErrRecordNotFound
	}
	fx := newSweepFixture(t, repo, catalogReturning(catalog.BookDTO{
		Title:       "The Dispossessed",
		AuthorName:  "Ursula K. Le Guin",
		PriceCents:  1500,
		IsAvailable: true,
		Stock:       4,
	}))

	if err := fx.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fx.emitter.inputs) != 0 {
		t.Fatalf("expected no notification after a lost version race, got %d", len(fx.emitter.inputs))
	}
	if len(fx.published) != 0 {
		t.Fatalf("expected no bus events after a lost version race, got %d", len(fx.published))
	}
}

func TestPriceSweepJob_UnchangedItemOnlyStampsCheckedAt(t *testing.T) {
	item := monitoredItem(uuid.New())
	repo := singleBatchRepo(item)
	fx := newSweepFixture(t, repo, catalogReturning(catalog.BookDTO{
		Title:              "The Dispossessed",
		AuthorName:         "Ursula K. Le Guin",
		PriceCents:         2000,
		OriginalPriceCents: 2000,
		IsAvailable:        true,
		Stock:              4,
	}))

	if err := fx.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	saved := repo.updates[0]
	if saved.LastCheckedAt == nil {
		t.Fatal("expected last_checked_at stamped even without changes")
	}
	if len(saved.PriceHistory) != 0 {
		t.Fatalf("expected no history entry for an unchanged price, got %d", len(saved.PriceHistory))
	}
	if len(fx.emitter.inputs) != 0 || len(fx.published) != 0 {
		t.Fatal("expected no notifications or events for an unchanged item")
	}
	if saved.Status != enums.WishlistStatusAvailable {
		t.Fatalf("expected status available, got %s", saved.Status)
	}
}

func TestPriceSweepJob_WalksCursorBatches(t *testing.T) {
	first := monitoredItem(uuid.New())
	second := monitoredItem(uuid.New())
	batches := [][]models.WishlistItem{{first}, {second}}
	repo := &fakeSweepRepo{}
	repo.listFn = func(_ context.Context, after *pagination.Cursor, _ int) ([]models.WishlistItem, *pagination.Cursor, error) {
		if len(batches) == 0 {
			return nil, nil, nil
		}
		batch := batches[0]
		batches = batches[1:]
		if len(batches) == 0 {
			return batch, nil, nil
		}
		last := batch[len(batch)-1]
		return batch, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	fx := newSweepFixture(t, repo, catalogReturning(catalog.BookDTO{
		Title:       "The Dispossessed",
		AuthorName:  "Ursula K. Le Guin",
		PriceCents:  2000,
		IsAvailable: true,
		Stock:       4,
	}))

	if err := fx.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if repo.listCalls != 2 {
		t.Fatalf("expected 2 batch reads, got %d", repo.listCalls)
	}
	if len(repo.updates) != 2 {
		t.Fatalf("expected both items persisted, got %d", len(repo.updates))
	}
}

func TestPriceSweepJob_ListFailureAbortsRun(t *testing.T) {
	repo := &fakeSweepRepo{
		listFn: func(context.Context, *pagination.Cursor, int) ([]models.WishlistItem, *pagination.Cursor, error) {
			return nil, nil, errors.New("db down")
		},
	}
	fx := newSweepFixture(t, repo, catalogReturning(catalog.BookDTO{}))

	if err := fx.job.Run(context.Background()); err == nil {
		t.Fatal("expected error when the batch read fails")
	}
}
