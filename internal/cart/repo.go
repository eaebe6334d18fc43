package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leafline-books/leafline-backend/internal/repo"
	"github.com/leafline-books/leafline-backend/pkg/db/models"
)

// Repository encapsulates cart persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a cart repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a cart line. The active (user, book) partial unique
// index is left to the database; callers translate the violation.
func (r *Repository) Create(ctx context.Context, item *models.CartItem) error {
	return r.DB(ctx).Create(item).Error
}

// FindByID loads one line scoped to its owner.
func (r *Repository) FindByID(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.DB(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindActiveByUserAndBook loads the active (not saved-for-later) line
// for one (user, book) pair.
func (r *Repository) FindActiveByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.DB(ctx).
		Where("user_id = ? AND book_id = ? AND saved_for_later = ?", userID, bookID, false).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Save persists all mutable columns of an existing line.
func (r *Repository) Save(ctx context.Context, item *models.CartItem) error {
	return r.DB(ctx).Save(item).Error
}

// Delete removes one line scoped to its owner, reporting how many rows
// went away.
func (r *Repository) Delete(ctx context.Context, userID, itemID uuid.UUID) (int64, error) {
	result := r.DB(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
		Delete(&models.CartItem{})
	return result.RowsAffected, result.Error
}

// ListByUser returns every line for one user, oldest first so the cart
// renders in add order.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var rows []models.CartItem
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// DeleteExpired removes every line past its expiry, reporting the count.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.DB(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.CartItem{})
	return result.RowsAffected, result.Error
}
