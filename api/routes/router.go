package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leafline-books/leafline-backend/api/controllers"
	"github.com/leafline-books/leafline-backend/api/middleware"
	"github.com/leafline-books/leafline-backend/internal/cart"
	"github.com/leafline-books/leafline-backend/internal/catalog"
	"github.com/leafline-books/leafline-backend/internal/notifications"
	"github.com/leafline-books/leafline-backend/internal/wishlist"
	"github.com/leafline-books/leafline-backend/pkg/config"
	"github.com/leafline-books/leafline-backend/pkg/db"
	"github.com/leafline-books/leafline-backend/pkg/logger"
	"github.com/leafline-books/leafline-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	Catalog       catalog.Reader
	Wishlist      wishlist.Service
	Cart          cart.Service
	Notifications notifications.Service
	Gatherer      prometheus.Gatherer
}

// NewRouter assembles the API route tree.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var redisPinger redis.Pinger
	var idemStore middleware.IdempotencyStore
	if params.Redis != nil {
		redisPinger = params.Redis
		idemStore = params.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, redisPinger))
	})

	if params.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.UserContext(logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/books/{bookId}", controllers.BookDetail(params.Catalog, logg))

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", controllers.WishlistList(params.Wishlist, logg))
			r.Post("/", controllers.WishlistAdd(params.Wishlist, logg))
			r.Patch("/{itemId}", controllers.WishlistUpdate(params.Wishlist, logg))
			r.Delete("/{bookId}", controllers.WishlistRemove(params.Wishlist, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(params.Cart, logg))
			r.Post("/", controllers.CartAdd(params.Cart, logg))
			r.Patch("/{itemId}", controllers.CartUpdateQuantity(params.Cart, logg))
			r.Delete("/{itemId}", controllers.CartRemove(params.Cart, logg))
			r.Post("/{itemId}/save-for-later", controllers.CartSaveForLater(params.Cart, logg))
			r.Post("/{itemId}/move-to-cart", controllers.CartMoveToCart(params.Cart, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(params.Notifications, logg))
			r.Get("/unread-count", controllers.NotificationUnreadCount(params.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(params.Notifications, logg))
			r.Post("/{notificationId}/unread", controllers.MarkNotificationUnread(params.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(params.Notifications, logg))
			r.Delete("/{notificationId}", controllers.DeleteNotification(params.Notifications, logg))
		})

		r.Post("/sync/replay", controllers.SyncReplay(params.Wishlist, params.Cart, logg))
	})

	return r
}
