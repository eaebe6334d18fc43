package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/pkg/enums"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

// WishlistItem tracks a user's interest in one book, carrying a
// denormalized snapshot of catalog state plus monitoring metadata.
type WishlistItem struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index:wishlist_items_user_id_idx;uniqueIndex:wishlist_items_user_book_key"`
	BookID           uuid.UUID                `gorm:"column:book_id;type:uuid;not null;index:wishlist_items_book_id_idx;uniqueIndex:wishlist_items_user_book_key"`
	BookData         types.BookSnapshot       `gorm:"column:book_data;type:jsonb;serializer:json"`
	Priority         int                      `gorm:"column:priority;not null;default:3"`
	Notes            string                   `gorm:"column:notes;type:text"`
	Tags             types.StringSlice        `gorm:"column:tags;type:jsonb;serializer:json"`
	Notifications    types.NotificationPrefs  `gorm:"column:notifications;type:jsonb;serializer:json"`
	// NotifyPriceDrops mirrors Notifications.PriceDrops as a plain
	// column so the monitor sweep can filter without touching jsonb.
	// The repository keeps it in sync on every write. No gorm-side
	// default: a default tag would make gorm drop an explicit false
	// from the INSERT.
	NotifyPriceDrops bool                     `gorm:"column:notify_price_drops;not null"`
	PriceHistory     types.PriceHistory       `gorm:"column:price_history;type:jsonb;serializer:json"`
	TargetPriceCents *int                     `gorm:"column:target_price_cents"`
	Shared           bool                     `gorm:"column:shared;not null;default:false"`
	Status           enums.WishlistItemStatus `gorm:"column:status;type:text;not null;default:'available'"`
	Version          int                      `gorm:"column:version;not null;default:0"`
	LastCheckedAt    *time.Time               `gorm:"column:last_checked_at"`
	LastNotifiedAt   *time.Time               `gorm:"column:last_notified_at"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
