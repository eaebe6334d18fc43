package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/leafline-books/leafline-backend/internal/enrichment"
	"github.com/leafline-books/leafline-backend/internal/events"
	"github.com/leafline-books/leafline-backend/internal/notifications"
	"github.com/leafline-books/leafline-backend/internal/pricewatch"
	"github.com/leafline-books/leafline-backend/pkg/db/models"
	"github.com/leafline-books/leafline-backend/pkg/enums"
	"github.com/leafline-books/leafline-backend/pkg/logger"
	"github.com/leafline-books/leafline-backend/pkg/metrics"
	"github.com/leafline-books/leafline-backend/pkg/pagination"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

const (
	defaultSweepBatchSize = 200
	defaultHistoryCap     = 50
)

// sweepRepo is the wishlist surface the price sweep walks and updates.
type sweepRepo interface {
	ListMonitorBatch(ctx context.Context, after *pagination.Cursor, limit int) ([]models.WishlistItem, *pagination.Cursor, error)
	UpdateVersioned(ctx context.Context, item *models.WishlistItem, expectedVersion int) error
}

// notifier is the slice of the notifications package the sweep emits
// through.
type notifier interface {
	Emit(ctx context.Context, input notifications.EmitInput) (*models.Notification, error)
}

// PriceSweepJobParams configure the wishlist price/stock sweep.
type PriceSweepJobParams struct {
	Logger     *logger.Logger
	Repository sweepRepo
	Engine     *enrichment.Engine
	Emitter    notifier
	Bus        *events.Bus
	Metrics    *metrics.JobMetrics
	BatchSize  int
	HistoryCap int
}

// NewPriceSweepJob builds the sweep that refreshes every monitored
// wishlist item against the catalog and notifies on transitions.
func NewPriceSweepJob(params PriceSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("wishlist repository required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("enrichment engine required")
	}
	if params.Emitter == nil {
		return nil, fmt.Errorf("notification emitter required")
	}
	if params.Bus == nil {
		return nil, fmt.Errorf("event bus required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	historyCap := params.HistoryCap
	if historyCap <= 0 {
		historyCap = defaultHistoryCap
	}
	return &priceSweepJob{
		logg:       params.Logger,
		repo:       params.Repository,
		engine:     params.Engine,
		emitter:    params.Emitter,
		bus:        params.Bus,
		metrics:    params.Metrics,
		batchSize:  batchSize,
		historyCap: historyCap,
	}, nil
}

type priceSweepJob struct {
	logg       *logger.Logger
	repo       sweepRepo
	engine     *enrichment.Engine
	emitter    notifier
	bus        *events.Bus
	metrics    *metrics.JobMetrics
	batchSize  int
	historyCap int
}

func (j *priceSweepJob) Name() string { return "price-sweep" }

// Run walks the monitored items in keyset batches. A failure on one
// item is logged and skipped; the next cycle picks the item up again.
func (j *priceSweepJob) Run(ctx context.Context) error {
	var (
		cursor   *pagination.Cursor
		updated  int
		notified int
		skipped  int
	)

	for {
		items, next, err := j.repo.ListMonitorBatch(ctx, cursor, j.batchSize)
		if err != nil {
			return fmt.Errorf("list monitor batch: %w", err)
		}
		if len(items) == 0 {
			break
		}

		for i := range items {
			emitted, err := j.sweepItem(ctx, &items[i])
			if err != nil {
				itemCtx := j.logg.WithFields(ctx, map[string]any{
					"item_id": items[i].ID.String(),
					"book_id": items[i].BookID.String(),
				})
				j.logg.Warn(itemCtx, fmt.Sprintf("sweep skipped item: %v", err))
				skipped++
				continue
			}
			updated++
			notified += emitted
		}

		cursor = next
		if cursor == nil {
			break
		}
	}

	j.metrics.AddItems(j.Name(), "updated", updated)
	j.metrics.AddItems(j.Name(), "notified", notified)
	j.metrics.AddItems(j.Name(), "skipped", skipped)

	runCtx := j.logg.WithFields(ctx, map[string]any{
		"updated":  updated,
		"notified": notified,
		"skipped":  skipped,
	})
	j.logg.Info(runCtx, "price sweep complete")
	return nil
}

// sweepItem refreshes one item against the catalog, persists the new
// snapshot under the item's version and, once the write sticks, emits
// notifications for the observed transitions.
func (j *priceSweepJob) sweepItem(ctx context.Context, item *models.WishlistItem) (int, error) {
	result, err := j.engine.Refresh(ctx, enrichment.Item{
		BookID:   item.BookID,
		Snapshot: item.BookData,
	})
	if err != nil {
		return 0, fmt.Errorf("refresh: %w", err)
	}

	transitions := pricewatch.Detect(pricewatch.Observation{
		OldPriceCents:    item.BookData.PriceCents,
		NewPriceCents:    result.Current.PriceCents,
		OldAvailability:  item.BookData.IsAvailable,
		NewAvailability:  result.Current.IsAvailable,
		TargetPriceCents: item.TargetPriceCents,
	})

	previous := item.BookData
	checked := result.ObservedAt
	item.LastCheckedAt = &checked
	if result.Changed() {
		item.PriceHistory = j.engine.RecordObservation(item.PriceHistory, result, j.historyCap)
	}
	item.BookData = result.Current
	item.Status = sweepStatus(result, transitions)

	pending := j.notifiable(item, transitions)
	if len(pending) > 0 {
		item.LastNotifiedAt = &checked
	}

	if err := j.repo.UpdateVersioned(ctx, item, item.Version); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The row changed under us. The next cycle sees the new
			// version, so nothing is lost by moving on.
			return 0, fmt.Errorf("version moved on")
		}
		return 0, fmt.Errorf("persist: %w", err)
	}

	emitted := 0
	for _, transition := range pending {
		if err := j.emit(ctx, item, previous, result, transition); err != nil {
			itemCtx := j.logg.WithField(ctx, "item_id", item.ID.String())
			j.logg.Warn(itemCtx, fmt.Sprintf("notification emit failed: %v", err))
			continue
		}
		emitted++
	}
	j.publish(ctx, item, previous, result, transitions)
	return emitted, nil
}

// notifiable filters the detected transitions down to the ones this
// item's preferences opted into.
func (j *priceSweepJob) notifiable(item *models.WishlistItem, transitions []pricewatch.Event) []pricewatch.Event {
	pending := make([]pricewatch.Event, 0, len(transitions))
	for _, transition := range transitions {
		switch transition.Kind {
		case pricewatch.KindPriceDrop, pricewatch.KindTargetPriceReached:
			if item.Notifications.PriceDrops {
				pending = append(pending, transition)
			}
		case pricewatch.KindBackInStock:
			if item.Notifications.BackInStock {
				pending = append(pending, transition)
			}
		}
	}
	return pending
}

func (j *priceSweepJob) emit(ctx context.Context, item *models.WishlistItem, previous types.BookSnapshot, result enrichment.Result, transition pricewatch.Event) error {
	data := map[string]string{
		"title":  result.Current.Title,
		"author": result.Current.AuthorName,
	}

	var category enums.NotificationCategory
	switch transition.Kind {
	case pricewatch.KindPriceDrop:
		category = enums.CategoryPriceDrop
		data["newPrice"] = notifications.FormatPriceCents(result.Current.PriceCents)
		data["oldPrice"] = notifications.FormatPriceCents(previous.PriceCents)
		data["discount"] = strconv.Itoa(transition.DiscountPercentage)
	case pricewatch.KindTargetPriceReached:
		category = enums.CategoryTargetPriceReached
		data["newPrice"] = notifications.FormatPriceCents(result.Current.PriceCents)
	case pricewatch.KindBackInStock:
		category = enums.CategoryBackInStock
	default:
		return nil
	}

	_, err := j.emitter.Emit(ctx, notifications.EmitInput{
		UserID:   item.UserID,
		BookID:   item.BookID,
		Category: category,
		Data:     data,
		Source:   enrichment.Source,
	})
	return err
}

// publish announces every detected transition on the bus, preference
// settings notwithstanding: in-process listeners such as cached views
// still need to hear about the change.
func (j *priceSweepJob) publish(ctx context.Context, item *models.WishlistItem, previous types.BookSnapshot, result enrichment.Result, transitions []pricewatch.Event) {
	for _, transition := range transitions {
		payload := events.PricePayload{
			OldPriceCents:      previous.PriceCents,
			NewPriceCents:      result.Current.PriceCents,
			DiscountPercentage: transition.DiscountPercentage,
			Snapshot:           result.Current,
		}
		event := events.Event{
			UserID:  item.UserID,
			BookID:  item.BookID,
			Payload: payload,
		}
		switch transition.Kind {
		case pricewatch.KindPriceDrop, pricewatch.KindPriceIncrease:
			event.Kind = events.KindPriceChanged
		case pricewatch.KindTargetPriceReached:
			event.Kind = events.KindTargetPriceReached
		case pricewatch.KindBackInStock:
			event.Kind = events.KindBackInStock
		default:
			continue
		}
		j.bus.Publish(ctx, event)
	}
}

func sweepStatus(result enrichment.Result, transitions []pricewatch.Event) enums.WishlistItemStatus {
	if result.Missing {
		return enums.WishlistStatusDiscontinued
	}
	if !result.Current.IsAvailable {
		return enums.WishlistStatusOutOfStock
	}
	for _, transition := range transitions {
		switch transition.Kind {
		case pricewatch.KindPriceDrop:
			return enums.WishlistStatusPriceDropped
		case pricewatch.KindPriceIncrease:
			return enums.WishlistStatusPriceIncreased
		}
	}
	return enums.WishlistStatusAvailable
}
