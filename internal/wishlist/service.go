package wishlist

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leafline-books/leafline-backend/internal/catalog"
	"github.com/leafline-books/leafline-backend/internal/enrichment"
	"github.com/leafline-books/leafline-backend/internal/events"
	"github.com/leafline-books/leafline-backend/internal/offline"
	"github.com/leafline-books/leafline-backend/pkg/config"
	dbpkg "github.com/leafline-books/leafline-backend/pkg/db"
	"github.com/leafline-books/leafline-backend/pkg/db/models"
	"github.com/leafline-books/leafline-backend/pkg/enums"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/logger"
	"github.com/leafline-books/leafline-backend/pkg/pagination"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

const (
	uniquePairConstraint = "wishlist_items_user_book_key"
	casRetryLimit        = 3
	defaultPriority      = 3
	defaultHistoryCap    = 50
)

// repository is the persistence surface the service depends on.
type repository interface {
	Create(ctx context.Context, item *models.WishlistItem) error
	FindByID(ctx context.Context, userID, itemID uuid.UUID) (*models.WishlistItem, error)
	FindByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (*models.WishlistItem, error)
	DeleteByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (int64, error)
	UpdateVersioned(ctx context.Context, item *models.WishlistItem, expectedVersion int) error
	ListByUser(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.WishlistItem, string, int64, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	Repo      repository
	Catalog   catalog.Service
	Engine    *enrichment.Engine
	Bus       *events.Bus
	Queue     *offline.Queue
	Cache     *enrichment.Cache[PageDTO]
	ReadModel *offline.ReadModel[PageDTO]
	Logger    *logger.Logger
	Config    config.WishlistConfig
	Now       func() time.Time
}

// Service exposes business rules for wishlist management.
type Service interface {
	Add(ctx context.Context, userID, bookID uuid.UUID, input AddInput) (ItemDTO, error)
	Remove(ctx context.Context, userID, bookID uuid.UUID) error
	Update(ctx context.Context, userID, itemID uuid.UUID, input UpdateInput) (ItemDTO, error)
	List(ctx context.Context, userID uuid.UUID, cursor string, limit int) (PageDTO, error)
	Subscribe(userID uuid.UUID, handler events.Handler) events.Unsubscribe
	ReplayOffline(ctx context.Context, userID uuid.UUID) (offline.ReplayReport, error)
}

type service struct {
	repo      repository
	catalog   catalog.Service
	engine    *enrichment.Engine
	bus       *events.Bus
	queue     *offline.Queue
	cache     *enrichment.Cache[PageDTO]
	readModel *offline.ReadModel[PageDTO]
	logg      *logger.Logger
	cfg       config.WishlistConfig
	now       func() time.Time
}

// NewService builds a wishlist service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist repo is required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog service is required")
	}
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrichment engine is required")
	}
	if params.Bus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event bus is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	cache := params.Cache
	if cache == nil {
		cache = enrichment.NewCache[PageDTO](params.Config.CacheTTL, now)
	}
	readModel := params.ReadModel
	if readModel == nil {
		readModel = offline.NewReadModel[PageDTO](now)
	}
	return &service{
		repo:      params.Repo,
		catalog:   params.Catalog,
		engine:    params.Engine,
		bus:       params.Bus,
		queue:     params.Queue,
		cache:     cache,
		readModel: readModel,
		logg:      params.Logger,
		cfg:       params.Config,
		now:       now,
	}, nil
}

// Add validates the book, inserts the wishlist row and fans out the
// side effects. A duplicate (user, book) pair is a conflict. When the
// store is unreachable the write is parked on the offline queue and a
// pending item is returned.
func (s *service) Add(ctx context.Context, userID, bookID uuid.UUID, input AddInput) (ItemDTO, error) {
	if userID == uuid.Nil {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if bookID == uuid.Nil {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	if input.Priority != 0 && (input.Priority < 1 || input.Priority > 5) {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "priority must be between 1 and 5")
	}
	if input.TargetPriceCents != nil && *input.TargetPriceCents < 0 {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "target price must not be negative")
	}

	book, err := s.catalog.GetBookByID(ctx, bookID)
	if err != nil {
		return ItemDTO{}, err
	}

	item := s.buildItem(userID, book, input)
	if err := s.repo.Create(ctx, item); err != nil {
		if dbpkg.IsUniqueViolation(err, uniquePairConstraint) {
			return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "book already on wishlist")
		}
		if errors.Is(err, gorm.ErrInvalidValue) {
			return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid wishlist item")
		}
		return s.addOffline(ctx, userID, bookID, input, *item, err)
	}

	if err := s.catalog.IncrementWishlistCount(ctx, bookID); err != nil {
		s.warn(ctx, userID, "increment wishlist counter failed", err)
	}

	dto := toDTO(*item)
	s.cache.Invalidate(userID)
	s.bus.Publish(ctx, events.Event{
		Kind:    events.KindItemAdded,
		UserID:  userID,
		BookID:  bookID,
		Payload: dto,
	})
	return dto, nil
}

func (s *service) addOffline(ctx context.Context, userID, bookID uuid.UUID, input AddInput, item models.WishlistItem, cause error) (ItemDTO, error) {
	if s.queue == nil {
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "create wishlist item")
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode wishlist add")
	}
	if err := s.queue.Enqueue(ctx, offline.Operation{
		Kind:    offline.OpWishlistAdd,
		UserID:  userID,
		BookID:  bookID,
		Payload: payload,
	}); err != nil {
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "create wishlist item")
	}
	s.warn(ctx, userID, "store unreachable, wishlist add queued", cause)

	dto := toDTO(item)
	dto.Pending = true
	s.readModel.Mutate(userID, func(view PageDTO) PageDTO {
		view.Items = append([]ItemDTO{dto}, view.Items...)
		view.Pagination.Total++
		return view
	})
	return dto, nil
}

// Remove drops the pair, decrements the book counter and publishes
// item_removed. Removing an absent pair reports not found.
func (s *service) Remove(ctx context.Context, userID, bookID uuid.UUID) error {
	if userID == uuid.Nil || bookID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and book id are required")
	}

	rows, err := s.repo.DeleteByUserAndBook(ctx, userID, bookID)
	if err != nil {
		return s.removeOffline(ctx, userID, bookID, err)
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "wishlist item not found")
	}

	if err := s.catalog.DecrementWishlistCount(ctx, bookID); err != nil {
		s.warn(ctx, userID, "decrement wishlist counter failed", err)
	}

	s.cache.Invalidate(userID)
	s.bus.Publish(ctx, events.Event{
		Kind:   events.KindItemRemoved,
		UserID: userID,
		BookID: bookID,
	})
	return nil
}

func (s *service) removeOffline(ctx context.Context, userID, bookID uuid.UUID, cause error) error {
	if s.queue == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "remove wishlist item")
	}
	if err := s.queue.Enqueue(ctx, offline.Operation{
		Kind:   offline.OpWishlistRemove,
		UserID: userID,
		BookID: bookID,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "remove wishlist item")
	}
	s.warn(ctx, userID, "store unreachable, wishlist remove queued", cause)

	s.readModel.Mutate(userID, func(view PageDTO) PageDTO {
		kept := view.Items[:0]
		for _, item := range view.Items {
			if item.BookID != bookID {
				kept = append(kept, item)
			}
		}
		removed := len(view.Items) - len(kept)
		view.Items = kept
		view.Pagination.Total -= removed
		return view
	})
	return nil
}

// Update applies a partial edit under the version compare-and-swap.
// With ExpectedVersion set a stale version is a state conflict; without
// it the service retries the swap against concurrent writers.
func (s *service) Update(ctx context.Context, userID, itemID uuid.UUID, input UpdateInput) (ItemDTO, error) {
	if userID == uuid.Nil || itemID == uuid.Nil {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id and item id are required")
	}
	if input.Priority != nil && (*input.Priority < 1 || *input.Priority > 5) {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "priority must be between 1 and 5")
	}
	if input.TargetPriceCents != nil && *input.TargetPriceCents < 0 {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "target price must not be negative")
	}

	for attempt := 0; attempt < casRetryLimit; attempt++ {
		item, err := s.repo.FindByID(ctx, userID, itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "wishlist item not found")
			}
			return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist item")
		}

		if input.ExpectedVersion != nil && *input.ExpectedVersion != item.Version {
			return ItemDTO{}, pkgerrors.New(pkgerrors.CodeStateConflict, "wishlist item changed since last read")
		}

		applyUpdate(item, input)
		err = s.repo.UpdateVersioned(ctx, item, item.Version)
		if err == nil {
			dto := toDTO(*item)
			s.cache.Invalidate(userID)
			s.bus.Publish(ctx, events.Event{
				Kind:    events.KindItemUpdated,
				UserID:  userID,
				BookID:  item.BookID,
				Payload: dto,
			})
			return dto, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wishlist item")
		}
		if input.ExpectedVersion != nil {
			return ItemDTO{}, pkgerrors.New(pkgerrors.CodeStateConflict, "wishlist item changed since last read")
		}
	}
	return ItemDTO{}, pkgerrors.New(pkgerrors.CodeStateConflict, "wishlist item kept changing during update")
}

func applyUpdate(item *models.WishlistItem, input UpdateInput) {
	if input.Priority != nil {
		item.Priority = *input.Priority
	}
	if input.Notes != nil {
		item.Notes = *input.Notes
	}
	if input.Tags != nil {
		item.Tags = types.StringSlice(*input.Tags)
	}
	if input.ClearTargetPrice {
		item.TargetPriceCents = nil
	} else if input.TargetPriceCents != nil {
		v := *input.TargetPriceCents
		item.TargetPriceCents = &v
	}
	if input.Notifications != nil {
		item.Notifications = *input.Notifications
	}
	if input.Shared != nil {
		item.Shared = *input.Shared
	}
}

// List returns the enriched cursor page for one user. Uncursored pages
// are cached per user; when the store is unreachable the last known
// view is served stale instead of failing the read.
func (s *service) List(ctx context.Context, userID uuid.UUID, cursor string, limit int) (PageDTO, error) {
	if userID == uuid.Nil {
		return PageDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	firstPage := cursor == ""
	if firstPage {
		if page, ok := s.cache.Get(userID); ok {
			return page, nil
		}
	}

	rows, nextCursor, total, err := s.repo.ListByUser(ctx, userID, cursor, limit)
	if err != nil {
		if _, parseErr := pagination.ParseCursor(cursor); parseErr != nil {
			return PageDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid cursor")
		}
		if view, storedAt, ok := s.readModel.Load(userID); ok {
			s.warn(ctx, userID, "store unreachable, serving stale wishlist", err)
			view.Stale = true
			at := storedAt
			view.StaleAsOf = &at
			return view, nil
		}
		return PageDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlist items")
	}

	page := PageDTO{
		Items:      s.enrich(ctx, rows),
		Pagination: PageMeta{Total: int(total), Current: cursor, Next: nextCursor},
	}
	if firstPage {
		s.cache.Set(userID, page)
		s.readModel.Store(userID, page)
	}
	return page, nil
}

// enrich overlays current catalog state on the stored snapshots. Items
// whose catalog read failed keep the stored snapshot. Observed changes
// are written back so history and snapshots do not go stale between
// monitor sweeps.
func (s *service) enrich(ctx context.Context, rows []models.WishlistItem) []ItemDTO {
	items := make([]enrichment.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, enrichment.Item{BookID: row.BookID, Snapshot: row.BookData})
	}
	results, err := s.engine.RefreshAll(ctx, items)
	if err != nil {
		s.warn(ctx, uuid.Nil, "wishlist enrichment partially failed", err)
	}
	fresh := make(map[uuid.UUID]enrichment.Result, len(results))
	for _, result := range results {
		fresh[result.BookID] = result
	}

	dtos := make([]ItemDTO, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		if result, ok := fresh[row.BookID]; ok && result.Changed() {
			s.persistRefresh(ctx, row, result)
		}
		dto := toDTO(*row)
		if result, ok := fresh[row.BookID]; ok {
			dto.Book = result.Current
			if result.Missing {
				dto.Status = enums.WishlistStatusDiscontinued
			} else if !result.Current.IsAvailable {
				dto.Status = enums.WishlistStatusOutOfStock
			}
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

// persistRefresh writes an observed price or availability change back to
// the stored row, appending the price history entry. A lost version race
// means the sweep or another reader already persisted a fresher
// observation, so it is not an error.
func (s *service) persistRefresh(ctx context.Context, item *models.WishlistItem, result enrichment.Result) {
	historyCap := s.cfg.PriceHistoryCap
	if historyCap <= 0 {
		historyCap = defaultHistoryCap
	}
	if result.Previous.PriceCents != result.Current.PriceCents {
		item.PriceHistory = s.engine.RecordObservation(item.PriceHistory, result, historyCap)
	}
	item.BookData = result.Current
	at := result.ObservedAt
	item.LastCheckedAt = &at
	if err := s.repo.UpdateVersioned(ctx, item, item.Version); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.warn(ctx, item.UserID, "persist refreshed snapshot failed", err)
	}
}

// Subscribe delivers this user's wishlist events to handler until the
// returned function is called.
func (s *service) Subscribe(userID uuid.UUID, handler events.Handler) events.Unsubscribe {
	return s.bus.Subscribe(func(ctx context.Context, event events.Event) {
		if event.UserID == userID {
			handler(ctx, event)
		}
	},
		events.KindItemAdded,
		events.KindItemUpdated,
		events.KindItemRemoved,
		events.KindPriceChanged,
		events.KindBackInStock,
		events.KindTargetPriceReached,
	)
}

// ReplayOffline drains the user's queued wishlist mutations against the
// store. The queue is cleared after the pass whatever the outcome.
func (s *service) ReplayOffline(ctx context.Context, userID uuid.UUID) (offline.ReplayReport, error) {
	if s.queue == nil {
		return offline.ReplayReport{}, nil
	}
	report, err := s.queue.Replay(ctx, userID, func(ctx context.Context, op offline.Operation) error {
		switch op.Kind {
		case offline.OpWishlistAdd:
			var input AddInput
			if len(op.Payload) > 0 {
				if err := json.Unmarshal(op.Payload, &input); err != nil {
					return err
				}
			}
			_, err := s.Add(ctx, op.UserID, op.BookID, input)
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				return nil
			}
			return err
		case offline.OpWishlistRemove:
			err := s.Remove(ctx, op.UserID, op.BookID)
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil
			}
			return err
		default:
			return nil
		}
	})
	if err != nil {
		return report, err
	}
	s.cache.Invalidate(userID)
	s.readModel.Drop(userID)
	return report, nil
}

func (s *service) buildItem(userID uuid.UUID, book *catalog.BookDTO, input AddInput) *models.WishlistItem {
	snapshot := book.Snapshot()
	priority := input.Priority
	if priority == 0 {
		priority = defaultPriority
	}
	prefs := types.NotificationPrefs{PriceDrops: true, BackInStock: true}
	if input.Notifications != nil {
		prefs = *input.Notifications
	}
	var target *int
	if input.TargetPriceCents != nil {
		v := *input.TargetPriceCents
		target = &v
	}
	status := enums.WishlistStatusAvailable
	if !snapshot.IsAvailable {
		status = enums.WishlistStatusOutOfStock
	}

	return &models.WishlistItem{
		ID:            uuid.New(),
		UserID:        userID,
		BookID:        book.ID,
		BookData:      snapshot,
		Priority:      priority,
		Notes:         input.Notes,
		Tags:          types.StringSlice(input.Tags),
		Notifications: prefs,
		PriceHistory: types.PriceHistory{{
			PriceCents: snapshot.PriceCents,
			Timestamp:  s.now(),
			Source:     priceSourceAdd,
		}},
		TargetPriceCents: target,
		Shared:           input.Shared,
		Status:           status,
	}
}

func (s *service) warn(ctx context.Context, userID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	if userID != uuid.Nil {
		ctx = s.logg.WithUserID(ctx, userID.String())
	}
	if err != nil {
		ctx = s.logg.WithField(ctx, "error", err.Error())
	}
	s.logg.Warn(ctx, msg)
}
