package wishlist

import (
	"time"

	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/pkg/db/models"
	"github.com/leafline-books/leafline-backend/pkg/enums"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

// priceSourceAdd tags the history entry recorded when an item is added.
const priceSourceAdd = "add"

// ItemDTO is the wishlist row handed to controllers and subscribers.
type ItemDTO struct {
	ID               uuid.UUID                `json:"id"`
	UserID           uuid.UUID                `json:"user_id"`
	BookID           uuid.UUID                `json:"book_id"`
	Book             types.BookSnapshot       `json:"book"`
	Priority         int                      `json:"priority"`
	Notes            string                   `json:"notes,omitempty"`
	Tags             []string                 `json:"tags,omitempty"`
	Notifications    types.NotificationPrefs  `json:"notifications"`
	PriceHistory     types.PriceHistory       `json:"price_history,omitempty"`
	TargetPriceCents *int                     `json:"target_price_cents,omitempty"`
	Shared           bool                     `json:"shared"`
	Status           enums.WishlistItemStatus `json:"status"`
	Version          int                      `json:"version"`
	// Pending marks an item accepted into the offline queue but not yet
	// persisted to the store.
	Pending   bool      `json:"pending,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageMeta carries cursor pagination metadata.
type PageMeta struct {
	Total   int    `json:"total"`
	Current string `json:"current,omitempty"`
	Next    string `json:"next,omitempty"`
}

// PageDTO is one cursor-paginated wishlist view.
type PageDTO struct {
	Items      []ItemDTO `json:"items"`
	Pagination PageMeta  `json:"pagination"`
	// Stale marks a page served from the offline read model.
	Stale     bool       `json:"stale,omitempty"`
	StaleAsOf *time.Time `json:"stale_as_of,omitempty"`
}

// AddInput carries the optional fields accepted when adding an item.
type AddInput struct {
	Priority         int                      `json:"priority" validate:"omitempty,min=1,max=5"`
	Notes            string                   `json:"notes" validate:"omitempty,max=2000"`
	Tags             []string                 `json:"tags" validate:"omitempty,dive,max=64"`
	TargetPriceCents *int                     `json:"target_price_cents" validate:"omitempty,min=0"`
	Notifications    *types.NotificationPrefs `json:"notifications"`
	Shared           bool                     `json:"shared"`
}

// UpdateInput is a partial update; nil fields are left untouched.
// ExpectedVersion, when set, turns the write into a compare-and-swap
// against the client's last seen version.
type UpdateInput struct {
	Priority         *int                     `json:"priority" validate:"omitempty,min=1,max=5"`
	Notes            *string                  `json:"notes" validate:"omitempty,max=2000"`
	Tags             *[]string                `json:"tags" validate:"omitempty,dive,max=64"`
	TargetPriceCents *int                     `json:"target_price_cents" validate:"omitempty,min=0"`
	ClearTargetPrice bool                     `json:"clear_target_price"`
	Notifications    *types.NotificationPrefs `json:"notifications"`
	Shared           *bool                    `json:"shared"`
	ExpectedVersion  *int                     `json:"expected_version"`
}

func toDTO(item models.WishlistItem) ItemDTO {
	return ItemDTO{
		ID:               item.ID,
		UserID:           item.UserID,
		BookID:           item.BookID,
		Book:             item.BookData,
		Priority:         item.Priority,
		Notes:            item.Notes,
		Tags:             item.Tags,
		Notifications:    item.Notifications,
		PriceHistory:     item.PriceHistory,
		TargetPriceCents: item.TargetPriceCents,
		Shared:           item.Shared,
		Status:           item.Status,
		Version:          item.Version,
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
	}
}
