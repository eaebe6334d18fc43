package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/pkg/db/models"
)

// BookDTO is the catalog read projection handed to callers.
type BookDTO struct {
	ID                 uuid.UUID `json:"id"`
	Title              string    `json:"title"`
	AuthorName         string    `json:"author_name"`
	PriceCents         int       `json:"price_cents"`
	OriginalPriceCents int       `json:"original_price_cents"`
	IsAvailable        bool      `json:"is_available"`
	Stock              int       `json:"stock"`
	ISBN               string    `json:"isbn,omitempty"`
	SKU                string    `json:"sku,omitempty"`
	GenreName          string    `json:"genre_name,omitempty"`
	CoverImageURL      string    `json:"cover_image_url,omitempty"`
	WishlistCount      int       `json:"wishlist_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toDTO(book *models.Book) BookDTO {
	return BookDTO{
		ID:                 book.ID,
		Title:              book.Title,
		AuthorName:         book.AuthorName,
		PriceCents:         book.PriceCents,
		OriginalPriceCents: book.OriginalPriceCents,
		IsAvailable:        book.IsAvailable,
		Stock:              book.Stock,
		ISBN:               book.ISBN,
		SKU:                book.SKU,
		GenreName:          book.GenreName,
		CoverImageURL:      book.CoverImageURL,
		WishlistCount:      book.WishlistCount,
		CreatedAt:          book.CreatedAt,
		UpdatedAt:          book.UpdatedAt,
	}
}
