package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leafline-books/leafline-backend/pkg/db/models"
)

// Repository encapsulates catalog persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a single book row.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// IncrementWishlistCount bumps the book's wishlist counter by delta.
// Negative deltas never take the counter below zero.
func (r *Repository) IncrementWishlistCount(ctx context.Context, id uuid.UUID, delta int) error {
	return r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ?", id).
		UpdateColumn("wishlist_count", gorm.Expr("CASE WHEN wishlist_count + ? < 0 THEN 0 ELSE wishlist_count + ? END", delta, delta)).
		Error
}
