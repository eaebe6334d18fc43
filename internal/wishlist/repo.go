package wishlist

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leafline-books/leafline-backend/internal/repo"
	"github.com/leafline-books/leafline-backend/pkg/db/models"
	"github.com/leafline-books/leafline-backend/pkg/pagination"
)

// Repository encapsulates wishlist persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a wishlist entry. The (user, book) unique constraint is
// left to the database; callers translate the violation.
func (r *Repository) Create(ctx context.Context, item *models.WishlistItem) error {
	item.NotifyPriceDrops = item.Notifications.PriceDrops
	return r.DB(ctx).Create(item).Error
}

// FindByID loads one item scoped to its owner.
func (r *Repository) FindByID(ctx context.Context, userID, itemID uuid.UUID) (*models.WishlistItem, error) {
	var item models.WishlistItem
	err := r.DB(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByUserAndBook loads the item for one (user, book) pair.
func (r *Repository) FindByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (*models.WishlistItem, error) {
	var item models.WishlistItem
	err := r.DB(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteByUserAndBook removes the pair if present, reporting how many
// rows went away.
func (r *Repository) DeleteByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (int64, error) {
	result := r.DB(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Delete(&models.WishlistItem{})
	return result.RowsAffected, result.Error
}

// UpdateVersioned persists item with a compare-and-swap on the version
// column. It returns gorm.ErrRecordNotFound when the row moved on,
// leaving the caller to reload and retry.
func (r *Repository) UpdateVersioned(ctx context.Context, item *models.WishlistItem, expectedVersion int) error {
	result := r.DB(ctx).
		Model(&models.WishlistItem{}).
		Where("id = ? AND version = ?", item.ID, expectedVersion).
		Updates(map[string]any{
			"book_data":          item.BookData,
			"priority":           item.Priority,
			"notes":              item.Notes,
			"tags":               item.Tags,
			"notifications":      item.Notifications,
			"notify_price_drops": item.Notifications.PriceDrops,
			"price_history":      item.PriceHistory,
			"target_price_cents": item.TargetPriceCents,
			"shared":             item.Shared,
			"status":             item.Status,
			"version":            expectedVersion + 1,
			"last_checked_at":    item.LastCheckedAt,
			"last_notified_at":   item.LastNotifiedAt,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	item.Version = expectedVersion + 1
	item.NotifyPriceDrops = item.Notifications.PriceDrops
	return nil
}

// ListByUser returns one cursor page of the user's items, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.WishlistItem, string, int64, error) {
	normalizedLimit := pagination.NormalizeLimit(limit)
	decodedCursor, err := pagination.ParseCursor(strings.TrimSpace(cursor))
	if err != nil {
		return nil, "", 0, err
	}

	query := r.DB(ctx).
		Model(&models.WishlistItem{}).
		Where("user_id = ?", userID)
	if decodedCursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			decodedCursor.CreatedAt, decodedCursor.CreatedAt, decodedCursor.ID)
	}

	var rows []models.WishlistItem
	err = query.
		Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", 0, err
	}

	nextCursor := ""
	if len(rows) > normalizedLimit {
		rows = rows[:normalizedLimit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	total, err := r.CountByUser(ctx, userID)
	if err != nil {
		return nil, "", 0, err
	}
	return rows, nextCursor, total, nil
}

// CountByUser returns the user's wishlist size.
func (r *Repository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.WishlistItem{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// ListMonitorBatch returns the next keyset batch of items whose owners
// opted into price-drop notifications, oldest first so a sweep walks
// the whole table. The opt-in lives in a dedicated boolean column
// rather than a jsonb predicate so the filter behaves identically on
// Postgres and the sqlite test driver.
func (r *Repository) ListMonitorBatch(ctx context.Context, after *pagination.Cursor, limit int) ([]models.WishlistItem, *pagination.Cursor, error) {
	query := r.DB(ctx).
		Model(&models.WishlistItem{}).
		Where("notify_price_drops = ?", true)
	if after != nil {
		query = query.Where("(created_at > ?) OR (created_at = ? AND id > ?)",
			after.CreatedAt, after.CreatedAt, after.ID)
	}

	var rows []models.WishlistItem
	err := query.
		Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	last := rows[len(rows)-1]
	return rows, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
}
