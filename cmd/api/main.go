package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leafline-books/leafline-backend/api/routes"
	"github.com/leafline-books/leafline-backend/internal/cart"
	"github.com/leafline-books/leafline-backend/internal/catalog"
	"github.com/leafline-books/leafline-backend/internal/enrichment"
	"github.com/leafline-books/leafline-backend/internal/events"
	"github.com/leafline-books/leafline-backend/internal/notifications"
	"github.com/leafline-books/leafline-backend/internal/offline"
	"github.com/leafline-books/leafline-backend/internal/wishlist"
	"github.com/leafline-books/leafline-backend/pkg/config"
	"github.com/leafline-books/leafline-backend/pkg/db"
	"github.com/leafline-books/leafline-backend/pkg/instance"
	"github.com/leafline-books/leafline-backend/pkg/logger"
	"github.com/leafline-books/leafline-backend/pkg/migrate"
	"github.com/leafline-books/leafline-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	catalogSvc, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	engine, err := enrichment.NewEngine(catalogSvc, time.Now)
	if err != nil {
		logg.Error(context.Background(), "failed to create enrichment engine", err)
		os.Exit(1)
	}

	bus := events.NewBus(logg)

	wishlistQueue, err := offline.NewQueue(redisClient, "wishlist", logg, time.Now)
	if err != nil {
		logg.Error(context.Background(), "failed to create wishlist offline queue", err)
		os.Exit(1)
	}
	cartQueue, err := offline.NewQueue(redisClient, "cart", logg, time.Now)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart offline queue", err)
		os.Exit(1)
	}

	wishlistSvc, err := wishlist.NewService(wishlist.ServiceParams{
		Repo:    wishlist.NewRepository(dbClient.DB()),
		Catalog: catalogSvc,
		Engine:  engine,
		Bus:     bus,
		Queue:   wishlistQueue,
		Logger:  logg,
		Config:  cfg.Wishlist,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wishlist service", err)
		os.Exit(1)
	}

	cartSvc, err := cart.NewService(cart.ServiceParams{
		Repo:    cart.NewRepository(dbClient.DB()),
		Catalog: catalogSvc,
		Engine:  engine,
		Bus:     bus,
		Queue:   cartQueue,
		Logger:  logg,
		Config:  cfg.Cart,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	notificationSvc, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), bus, time.Now)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Catalog:       catalogSvc,
			Wishlist:      wishlistSvc,
			Cart:          cartSvc,
			Notifications: notificationSvc,
			Gatherer:      prometheus.DefaultGatherer,
		}),
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
	logg.Info(ctx, "api server stopped")
}
