package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/leafline-books/leafline-backend/internal/catalog"
	"github.com/leafline-books/leafline-backend/internal/pricewatch"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

// Source tags price-history entries written during enrichment sweeps.
const Source = "monitoring"

// Item is one stored snapshot the engine refreshes, keyed by book.
type Item struct {
	BookID   uuid.UUID
	Snapshot types.BookSnapshot
}

// Result pairs the stored snapshot with the current catalog state for
// one book.
type Result struct {
	BookID   uuid.UUID
	Previous types.BookSnapshot
	Current  types.BookSnapshot
	// Missing means the book no longer exists in the catalog. Current
	// then carries the previous state with availability forced off.
	Missing bool
	// ObservedAt is when the catalog was read.
	ObservedAt time.Time
}

// Changed reports whether the refresh observed a price or availability
// transition.
func (r Result) Changed() bool {
	return r.Previous.PriceCents != r.Current.PriceCents ||
		r.Previous.IsAvailable != r.Current.IsAvailable
}

// Engine refreshes denormalized book snapshots from the catalog.
type Engine struct {
	catalog catalog.Reader
	now     func() time.Time
}

// NewEngine builds an engine over the catalog read surface. now may be
// nil, in which case time.Now is used.
func NewEngine(reader catalog.Reader, now func() time.Time) (*Engine, error) {
	if reader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog reader is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{catalog: reader, now: now}, nil
}

// Refresh reloads one book and returns the paired before/after state.
// A book missing from the catalog is not an error: the result is marked
// Missing and reports the item as unavailable.
func (e *Engine) Refresh(ctx context.Context, item Item) (Result, error) {
	result := Result{
		BookID:     item.BookID,
		Previous:   item.Snapshot,
		ObservedAt: e.now(),
	}

	book, err := e.catalog.GetBookByID(ctx, item.BookID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			result.Missing = true
			result.Current = item.Snapshot
			result.Current.IsAvailable = false
			result.Current.Stock = 0
			return result, nil
		}
		return Result{}, err
	}

	current := book.Snapshot()
	current.DiscountPercentage = pricewatch.DiscountPercentage(current.OriginalPriceCents, current.PriceCents)
	result.Current = current
	return result, nil
}

// RefreshAll refreshes every item, skipping the ones whose catalog read
// failed. The returned error aggregates the per-item failures; results
// for the items that succeeded are returned either way.
func (e *Engine) RefreshAll(ctx context.Context, items []Item) ([]Result, error) {
	results := make([]Result, 0, len(items))
	var errs error

	for _, item := range items {
		result, err := e.Refresh(ctx, item)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refresh book %s: %w", item.BookID, err))
			continue
		}
		results = append(results, result)
	}

	return results, errs
}

// RecordObservation appends the refreshed price to history, keeping at
// most cap entries.
func (e *Engine) RecordObservation(history types.PriceHistory, result Result, cap int) types.PriceHistory {
	return history.Append(types.PriceEntry{
		PriceCents: result.Current.PriceCents,
		Timestamp:  result.ObservedAt,
		Source:     Source,
	}, cap)
}
