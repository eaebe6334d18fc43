package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/pkg/enums"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

// CartItem is one line item a user intends to purchase. At most one
// active (not saved-for-later) row exists per (user, book); re-adding
// increments quantity instead of duplicating.
type CartItem struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index:cart_items_user_id_idx"`
	BookID            uuid.UUID            `gorm:"column:book_id;type:uuid;not null;index:cart_items_book_id_idx"`
	Quantity          int                  `gorm:"column:quantity;not null;default:1"`
	PriceAtAddCents   int                  `gorm:"column:price_at_add_cents;not null"`
	CurrentPriceCents int                  `gorm:"column:current_price_cents;not null"`
	BookData          types.BookSnapshot   `gorm:"column:book_data;type:jsonb;serializer:json"`
	SessionID         string               `gorm:"column:session_id;type:text"`
	DeviceID          string               `gorm:"column:device_id;type:text"`
	SavedForLater     bool                 `gorm:"column:saved_for_later;not null;default:false"`
	Priority          int                  `gorm:"column:priority;not null;default:3"`
	Notes             string               `gorm:"column:notes;type:text"`
	Shared            bool                 `gorm:"column:shared;not null;default:false"`
	Status            enums.CartItemStatus `gorm:"column:status;type:text;not null;default:'ok'"`
	ExpiresAt         time.Time            `gorm:"column:expires_at;not null"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
