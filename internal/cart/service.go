package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
)

const activePairConstraint = "cart_items_user_book_active_key"

// repository is the persistence surface the service depends on.
type repository interface {
	Create(ctx context.Context, item *models.CartItem) error
	FindByID(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error)
	FindActiveByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (*models.CartItem, error)
	Save(ctx context.Context, item *models.CartItem) error
	Delete(ctx context.Context, userID, itemID uuid.UUID) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// qtyPayload is the offline envelope for quantity edits and removals.
type qtyPayload struct {
	ItemID   uuid.UUID `json:"itemId"`
	Quantity int       `json:"quantity,omitempty"`
}

// ServiceParams groups dependencies for the cart service.
type ServiceParams struct {
	Repo      repository
	Catalog   catalog.Reader
	Engine    *enrichment.Engine
	Bus       *events.Bus
	Queue     *offline.Queue
	Cache     *enrichment.Cache[CartDTO]
	ReadModel *offline.ReadModel[CartDTO]
	Logger    *logger.Logger
	Config    config.CartConfig
	Now       func() time.Time
}

// Service exposes business rules for cart management.
type Service interface {
	Add(ctx context.Context, userID, bookID uuid.UUID, input AddInput) (ItemDTO, error)
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (ItemDTO, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) error
	Get(ctx context.Context, userID uuid.UUID) (CartDTO, error)
	SaveForLater(ctx context.Context, userID, itemID uuid.UUID) (ItemDTO, error)
	MoveToCart(ctx context.Context, userID, itemID uuid.UUID) (ItemDTO, error)
	Subscribe(userID uuid.UUID, handler events.Handler) events.Unsubscribe
	ReplayOffline(ctx context.Context, userID uuid.UUID) (offline.ReplayReport, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type service struct {
	repo      repository
	catalog   catalog.Reader
	engine    *enrichment.Engine
	bus       *events.Bus
	queue     *offline.Queue
	cache     *enrichment.Cache[CartDTO]
	readModel *offline.ReadModel[CartDTO]
	logg      *logger.Logger
	cfg       config.CartConfig
	now       func() time.Time
}

// NewService builds a cart service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart repo is required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog reader is required")
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
		cache = enrichment.NewCache[CartDTO](params.Config.CacheTTL, now)
	}
	readModel := params.ReadModel
	if readModel == nil {
		readModel = offline.NewReadModel[CartDTO](now)
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

// Add puts a book in the cart. Re-adding an active book increments its
// quantity instead of duplicating the line. Quantity is bounded by the
// per-line maximum and the book's stock.
func (s *service) Add(ctx context.Context, userID, bookID uuid.UUID, input AddInput) (ItemDTO, error) {
	if userID == uuid.Nil || bookID == uuid.Nil {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id and book id are required")
	}
	quantity := input.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	book, err := s.catalog.GetBookByID(ctx, bookID)
	if err != nil {
		return ItemDTO{}, err
	}
	if !book.IsAvailable || book.Stock <= 0 {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeStateConflict, "book is out of stock")
	}

	existing, err := s.repo.FindActiveByUserAndBook(ctx, userID, bookID)
	switch {
	case err == nil:
		return s.incrementExisting(ctx, existing, quantity, book.Stock)
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to insert
	default:
		return s.addOffline(ctx, userID, bookID, input, err)
	}

	if err := s.checkQuantity(quantity, book.Stock); err != nil {
		return ItemDTO{}, err
	}

	item := s.buildItem(userID, book, input, quantity)
	if err := s.repo.Create(ctx, item); err != nil {
		if dbpkg.IsUniqueViolation(err, activePairConstraint) {
			// Lost the race to a concurrent add of the same book.
			return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "book already in cart")
		}
		return s.addOffline(ctx, userID, bookID, input, err)
	}

	dto := toItemDTO(*item)
	s.cache.Invalidate(userID)
	s.bus.Publish(ctx, events.Event{
		Kind:    events.KindItemAdded,
		UserID:  userID,
		BookID:  bookID,
		Payload: dto,
	})
	return dto, nil
}

func (s *service) incrementExisting(ctx context.Context, item *models.CartItem, delta, stock int) (ItemDTO, error) {
	next := item.Quantity + delta
	if err := s.checkQuantity(next, stock); err != nil {
		return ItemDTO{}, err
	}
	item.Quantity = next
	if err := s.repo.Save(ctx, item); err != nil {
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart quantity")
	}

	dto := toItemDTO(*item)
	s.cache.Invalidate(item.UserID)
	s.bus.Publish(ctx, events.Event{
		Kind:    events.KindItemUpdated,
		UserID:  item.UserID,
		BookID:  item.BookID,
		Payload: dto,
	})
	return dto, nil
}

func (s *service) checkQuantity(quantity, stock int) error {
	max := s.cfg.MaxQuantity
	if max <= 0 {
		max = 10
	}
	if quantity > max {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity exceeds the per-item limit of %d", max))
	}
	if quantity > stock {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "quantity exceeds available stock")
	}
	return nil
}

func (s *service) addOffline(ctx context.Context, userID, bookID uuid.UUID, input AddInput, cause error) (ItemDTO, error) {
	if s.queue == nil {
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "add cart item")
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart add")
	}
	if err := s.queue.Enqueue(ctx, offline.Operation{
		Kind:    offline.OpCartAdd,
		UserID:  userID,
		BookID:  bookID,
		Payload: payload,
	}); err != nil {
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "add cart item")
	}
	s.warn(ctx, userID, "store unreachable, cart add queued", cause)

	quantity := input.Quantity
	if quantity == 0 {
		quantity = 1
	}
	dto := ItemDTO{
		ID:       uuid.New(),
		UserID:   userID,
		BookID:   bookID,
		Quantity: quantity,
		Status:   enums.CartItemStatusOK,
		Pending:  true,
	}
	s.readModel.Mutate(userID, func(view CartDTO) CartDTO {
		view.Items = append(view.Items, dto)
		view.ItemCount += quantity
		return view
	})
	return dto, nil
}

// UpdateQuantity sets an explicit quantity on one line.
func (s *service) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (ItemDTO, error) {
	if userID == uuid.Nil || itemID == uuid.Nil {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id and item id are required")
	}
	if quantity < 1 {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	item, err := s.repo.FindByID(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "cart item not found")
		}
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	stock := item.BookData.Stock
	if book, err := s.catalog.GetBookByID(ctx, item.BookID); err == nil {
		stock = book.Stock
	}
	if err := s.checkQuantity(quantity, stock); err != nil {
		return ItemDTO{}, err
	}

	item.Quantity = quantity
	if err := s.repo.Save(ctx, item); err != nil {
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart quantity")
	}

	dto := toItemDTO(*item)
	s.cache.Invalidate(userID)
	s.bus.Publish(ctx, events.Event{
		Kind:    events.KindItemUpdated,
		UserID:  userID,
		BookID:  item.BookID,
		Payload: dto,
	})
	return dto, nil
}

// Remove deletes one line. Removing an absent line reports not found.
func (s *service) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	if userID == uuid.Nil || itemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and item id are required")
	}

	rows, err := s.repo.Delete(ctx, userID, itemID)
	if err != nil {
		return s.removeOffline(ctx, userID, itemID, err)
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	s.cache.Invalidate(userID)
	s.bus.Publish(ctx, events.Event{
		Kind:   events.KindItemRemoved,
		UserID: userID,
	})
	return nil
}

func (s *service) removeOffline(ctx context.Context, userID, itemID uuid.UUID, cause error) error {
	if s.queue == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "remove cart item")
	}
	payload, err := json.Marshal(qtyPayload{ItemID: itemID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart remove")
	}
	if err := s.queue.Enqueue(ctx, offline.Operation{
		Kind:    offline.OpCartRemove,
		UserID:  userID,
		Payload: payload,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "remove cart item")
	}
	s.warn(ctx, userID, "store unreachable, cart remove queued", cause)

	s.readModel.Mutate(userID, func(view CartDTO) CartDTO {
		kept := view.Items[:0]
		for _, line := range view.Items {
			if line.ID != itemID {
				kept = append(kept, line)
			} else {
				view.ItemCount -= line.Quantity
			}
		}
		view.Items = kept
		return view
	})
	return nil
}

// Get returns the enriched cart. The view is cached per user; when the
// store is unreachable the last known view is served stale.
func (s *service) Get(ctx context.Context, userID uuid.UUID) (CartDTO, error) {
	if userID == uuid.Nil {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	if view, ok := s.cache.Get(userID); ok {
		return view, nil
	}

	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		if view, storedAt, ok := s.readModel.Load(userID); ok {
			s.warn(ctx, userID, "store unreachable, serving stale cart", err)
			view.Stale = true
			at := storedAt
			view.StaleAsOf = &at
			return view, nil
		}
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
	}

	view := s.buildView(ctx, rows)
	s.cache.Set(userID, view)
	s.readModel.Store(userID, view)
	return view, nil
}

// buildView overlays current catalog state and computes totals. Lines
// whose catalog read failed keep the stored snapshot. Observed changes
// are written back so the stored snapshot tracks the catalog between
// monitor sweeps.
func (s *service) buildView(ctx context.Context, rows []models.CartItem) CartDTO {
	items := make([]enrichment.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, enrichment.Item{BookID: row.BookID, Snapshot: row.BookData})
	}
	results, err := s.engine.RefreshAll(ctx, items)
	if err != nil {
		s.warn(ctx, uuid.Nil, "cart enrichment partially failed", err)
	}
	fresh := make(map[uuid.UUID]enrichment.Result, len(results))
	for _, result := range results {
		fresh[result.BookID] = result
	}

	var view CartDTO
	for i := range rows {
		row := &rows[i]
		if result, ok := fresh[row.BookID]; ok && result.Changed() {
			row.BookData = result.Current
			row.CurrentPriceCents = result.Current.PriceCents
			if err := s.repo.Save(ctx, row); err != nil {
				s.warn(ctx, row.UserID, "persist refreshed cart snapshot failed", err)
			}
		}
		dto := toItemDTO(*row)
		if result, ok := fresh[row.BookID]; ok {
			dto.Book = result.Current
			dto.CurrentPriceCents = result.Current.PriceCents
			switch {
			case result.Missing || !result.Current.IsAvailable:
				dto.Status = enums.CartItemStatusOutOfStock
			case dto.CurrentPriceCents != dto.PriceAtAddCents:
				dto.Status = enums.CartItemStatusPriceChanged
			default:
				dto.Status = enums.CartItemStatusOK
			}
		}
		if dto.SavedForLater {
			view.SavedForLater = append(view.SavedForLater, dto)
			continue
		}
		view.Items = append(view.Items, dto)
		view.ItemCount += dto.Quantity
		if dto.Status != enums.CartItemStatusOutOfStock {
			view.SubtotalCents += dto.CurrentPriceCents * dto.Quantity
		}
	}
	return view
}

// SaveForLater parks one active line outside the purchase flow.
func (s *service) SaveForLater(ctx context.Context, userID, itemID uuid.UUID) (ItemDTO, error) {
	return s.toggleSaved(ctx, userID, itemID, true)
}

// MoveToCart reactivates a saved line. When the book is already active
// in the cart the quantities are merged onto the active line.
func (s *service) MoveToCart(ctx context.Context, userID, itemID uuid.UUID) (ItemDTO, error) {
	item, err := s.repo.FindByID(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "cart item not found")
		}
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if !item.SavedForLater {
		return toItemDTO(*item), nil
	}

	if active, err := s.repo.FindActiveByUserAndBook(ctx, userID, item.BookID); err == nil {
		merged := active.Quantity + item.Quantity
		max := s.cfg.MaxQuantity
		if max <= 0 {
			max = 10
		}
		if merged > max {
			merged = max
		}
		active.Quantity = merged
		if err := s.repo.Save(ctx, active); err != nil {
			return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart lines")
		}
		if _, err := s.repo.Delete(ctx, userID, item.ID); err != nil {
			return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop merged line")
		}
		dto := toItemDTO(*active)
		s.cache.Invalidate(userID)
		s.bus.Publish(ctx, events.Event{Kind: events.KindItemUpdated, UserID: userID, BookID: active.BookID, Payload: dto})
		return dto, nil
	}

	return s.toggleSaved(ctx, userID, itemID, false)
}

func (s *service) toggleSaved(ctx context.Context, userID, itemID uuid.UUID, saved bool) (ItemDTO, error) {
	if userID == uuid.Nil || itemID == uuid.Nil {
		return ItemDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id and item id are required")
	}

	item, err := s.repo.FindByID(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "cart item not found")
		}
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	item.SavedForLater = saved
	if err := s.repo.Save(ctx, item); err != nil {
		return ItemDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
	}

	dto := toItemDTO(*item)
	s.cache.Invalidate(userID)
	s.bus.Publish(ctx, events.Event{
		Kind:    events.KindItemUpdated,
		UserID:  userID,
		BookID:  item.BookID,
		Payload: dto,
	})
	return dto, nil
}

// Subscribe delivers this user's cart events to handler until the
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
		events.KindCartSynced,
	)
}

// ReplayOffline drains the user's queued cart mutations against the
// store. The queue is cleared after the pass whatever the outcome.
func (s *service) ReplayOffline(ctx context.Context, userID uuid.UUID) (offline.ReplayReport, error) {
	if s.queue == nil {
		return offline.ReplayReport{}, nil
	}
	report, err := s.queue.Replay(ctx, userID, func(ctx context.Context, op offline.Operation) error {
		switch op.Kind {
		case offline.OpCartAdd:
			var input AddInput
			if len(op.Payload) > 0 {
				if err := json.Unmarshal(op.Payload, &input); err != nil {
					return err
				}
			}
			_, err := s.Add(ctx, op.UserID, op.BookID, input)
			return err
		case offline.OpCartUpdateQty:
			var payload qtyPayload
			if err := json.Unmarshal(op.Payload, &payload); err != nil {
				return err
			}
			_, err := s.UpdateQuantity(ctx, op.UserID, payload.ItemID, payload.Quantity)
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil
			}
			return err
		case offline.OpCartRemove:
			var payload qtyPayload
			if err := json.Unmarshal(op.Payload, &payload); err != nil {
				return err
			}
			err := s.Remove(ctx, op.UserID, payload.ItemID)
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
	s.bus.Publish(ctx, events.Event{Kind: events.KindCartSynced, UserID: userID})
	return report, nil
}

// PurgeExpired removes every expired line. The monitor worker calls
// this on its sweep cadence.
func (s *service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func (s *service) buildItem(userID uuid.UUID, book *catalog.BookDTO, input AddInput, quantity int) *models.CartItem {
	ttlDays := s.cfg.UserTTLDays
	if input.Guest {
		ttlDays = s.cfg.GuestTTLDays
	}
	if ttlDays <= 0 {
		ttlDays = 30
	}
	snapshot := book.Snapshot()
	return &models.CartItem{
		ID:                uuid.New(),
		UserID:            userID,
		BookID:            book.ID,
		Quantity:          quantity,
		PriceAtAddCents:   book.PriceCents,
		CurrentPriceCents: book.PriceCents,
		BookData:          snapshot,
		SessionID:         input.SessionID,
		DeviceID:          input.DeviceID,
		Status:            enums.CartItemStatusOK,
		ExpiresAt:         s.now().Add(time.Duration(ttlDays) * 24 * time.Hour),
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
