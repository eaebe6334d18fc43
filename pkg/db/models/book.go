package models

import (
	"time"

	"github.com/google/uuid"
)

// Book is the catalog record the monitoring pipeline reads from.
type Book struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title              string    `gorm:"column:title;type:text;not null"`
	AuthorName         string    `gorm:"column:author_name;type:text;not null"`
	PriceCents         int       `gorm:"column:price_cents;not null"`
	OriginalPriceCents int       `gorm:"column:original_price_cents;not null"`
	IsAvailable        bool      `gorm:"column:is_available;not null;default:true"`
	Stock              int       `gorm:"column:stock;not null;default:0"`
	ISBN               string    `gorm:"column:isbn;type:text"`
	SKU                string    `gorm:"column:sku;type:text"`
	GenreName          string    `gorm:"column:genre_name;type:text"`
	CoverImageURL      string    `gorm:"column:cover_image_url;type:text"`
	WishlistCount      int       `gorm:"column:wishlist_count;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
