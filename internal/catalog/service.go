package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/types"
)

// Reader is the read surface the enrichment and monitoring paths consume.
type Reader interface {
	GetBookByID(ctx context.Context, id uuid.UUID) (*BookDTO, error)
}

// Service exposes catalog reads plus the wishlist counter side effects.
type Service interface {
	Reader
	IncrementWishlistCount(ctx context.Context, bookID uuid.UUID) error
	DecrementWishlistCount(ctx context.Context, bookID uuid.UUID) error
}

type service struct {
	repo *Repository
}

// NewService builds a catalog service backed by the repository.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repo is required")
	}
	return &service{repo: repo}, nil
}

// GetBookByID returns the current catalog state for one book.
func (s *service) GetBookByID(ctx context.Context, id uuid.UUID) (*BookDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "book not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
	}
	dto := toDTO(book)
	return &dto, nil
}

func (s *service) IncrementWishlistCount(ctx context.Context, bookID uuid.UUID) error {
	if err := s.repo.IncrementWishlistCount(ctx, bookID, 1); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment wishlist count")
	}
	return nil
}

func (s *service) DecrementWishlistCount(ctx context.Context, bookID uuid.UUID) error {
	if err := s.repo.IncrementWishlistCount(ctx, bookID, -1); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement wishlist count")
	}
	return nil
}

// Snapshot copies the catalog state a wishlist/cart item denormalizes.
func (d BookDTO) Snapshot() types.BookSnapshot {
	return types.BookSnapshot{
		Title:              d.Title,
		AuthorName:         d.AuthorName,
		CoverImageURL:      d.CoverImageURL,
		PriceCents:         d.PriceCents,
		OriginalPriceCents: d.OriginalPriceCents,
		IsAvailable:        d.IsAvailable,
		Stock:              d.Stock,
		ISBN:               d.ISBN,
		SKU:                d.SKU,
		GenreName:          d.GenreName,
	}
}
