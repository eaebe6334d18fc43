package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leafline-books/leafline-backend/api/responses"
	"github.com/leafline-books/leafline-backend/internal/catalog"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/logger"
)

// BookDetail returns the catalog record for one book.
func BookDetail(svc catalog.Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "bookId"))
		bookID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid book id"))
			return
		}

		book, err := svc.GetBookByID(ctx, bookID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, book)
	}
}
