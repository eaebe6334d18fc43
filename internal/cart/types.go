package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/pkg/db/models"
	"github.com/leafline-books/leafline-backend/pkg/enums"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

// ItemDTO is one cart line handed to controllers and subscribers.
type ItemDTO struct {
	ID                uuid.UUID            `json:"id"`
	UserID            uuid.UUID            `json:"user_id"`
	BookID            uuid.UUID            `json:"book_id"`
	Book              types.BookSnapshot   `json:"book"`
	Quantity          int                  `json:"quantity"`
	PriceAtAddCents   int                  `json:"price_at_add_cents"`
	CurrentPriceCents int                  `json:"current_price_cents"`
	SavedForLater     bool                 `json:"saved_for_later"`
	Status            enums.CartItemStatus `json:"status"`
	// Pending marks a line accepted into the offline queue but not yet
	// persisted to the store.
	Pending   bool      `json:"pending,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartDTO is the whole enriched cart view.
type CartDTO struct {
	Items         []ItemDTO `json:"items"`
	SavedForLater []ItemDTO `json:"saved_for_later"`
	SubtotalCents int       `json:"subtotal_cents"`
	ItemCount     int       `json:"item_count"`
	// Stale marks a view served from the offline read model.
	Stale     bool       `json:"stale,omitempty"`
	StaleAsOf *time.Time `json:"stale_as_of,omitempty"`
}

// AddInput carries the optional fields accepted when adding a line.
type AddInput struct {
	Quantity  int    `json:"quantity" validate:"omitempty,min=1,max=10"`
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
	DeviceID  string `json:"device_id" validate:"omitempty,max=128"`
	// Guest carts expire on the shorter retention window.
	Guest bool `json:"guest"`
}

func toItemDTO(item models.CartItem) ItemDTO {
	return ItemDTO{
		ID:                item.ID,
		UserID:            item.UserID,
		BookID:            item.BookID,
		Book:              item.BookData,
		Quantity:          item.Quantity,
		PriceAtAddCents:   item.PriceAtAddCents,
		CurrentPriceCents: item.CurrentPriceCents,
		SavedForLater:     item.SavedForLater,
		Status:            item.Status,
		ExpiresAt:         item.ExpiresAt,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
}
