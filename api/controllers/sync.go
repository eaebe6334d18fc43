package controllers

import (
	"net/http"

	"github.com/leafline-books/leafline-backend/api/responses"
	"github.com/leafline-books/leafline-backend/internal/cart"
	"github.com/leafline-books/leafline-backend/internal/offline"
	"github.com/leafline-books/leafline-backend/internal/wishlist"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/logger"
)

type syncReplayResponse struct {
	Wishlist offline.ReplayReport `json:"wishlist"`
	Cart     offline.ReplayReport `json:"cart"`
}

// SyncReplay drains the user's offline mutation queue, applying the
// queued wishlist and cart operations in arrival order.
func SyncReplay(wishlistSvc wishlist.Service, cartSvc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if wishlistSvc == nil || cartSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync services unavailable"))
			return
		}

		userID, err := actingUser(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var resp syncReplayResponse
		resp.Wishlist, err = wishlistSvc.ReplayOffline(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		resp.Cart, err = cartSvc.ReplayOffline(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, resp)
	}
}
