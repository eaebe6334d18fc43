package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leafline-books/leafline-backend/internal/cart"
	"github.com/leafline-books/leafline-backend/internal/catalog"
	"github.com/leafline-books/leafline-backend/internal/enrichment"
	"github.com/leafline-books/leafline-backend/internal/events"
	"github.com/leafline-books/leafline-backend/internal/monitor"
	"github.com/leafline-books/leafline-backend/internal/notifications"
	"github.com/leafline-books/leafline-backend/internal/wishlist"
	"github.com/leafline-books/leafline-backend/pkg/config"
	"github.com/leafline-books/leafline-backend/pkg/db"
	"github.com/leafline-books/leafline-backend/pkg/instance"
	"github.com/leafline-books/leafline-backend/pkg/logger"
	"github.com/leafline-books/leafline-backend/pkg/metrics"
	"github.com/leafline-books/leafline-backend/pkg/migrate"
	"github.com/leafline-books/leafline-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "monitor-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "monitor-worker"

	logg = logger.New(logger.Options{
		ServiceName: "monitor-worker",
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

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := monitor.NewRedisLock(redisClient, redisClient.LockKey("monitor-worker:"+env), cfg.Monitor.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create monitor lock", err)
		os.Exit(1)
	}

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

	emitter, err := notifications.NewEmitter(notifications.NewRepository(dbClient.DB()), bus, logg, time.Now)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification emitter", err)
		os.Exit(1)
	}

	cartSvc, err := cart.NewService(cart.ServiceParams{
		Repo:    cart.NewRepository(dbClient.DB()),
		Catalog: catalogSvc,
		Engine:  engine,
		Bus:     bus,
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

	priceSweep, err := monitor.NewPriceSweepJob(monitor.PriceSweepJobParams{
		Logger:     logg,
		Repository: wishlist.NewRepository(dbClient.DB()),
		Engine:     engine,
		Emitter:    emitter,
		Bus:        bus,
		Metrics:    jobMetrics,
		BatchSize:  cfg.Monitor.BatchSize,
		HistoryCap: cfg.Wishlist.PriceHistoryCap,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create price sweep job", err)
		os.Exit(1)
	}

	cartExpiry, err := monitor.NewCartExpiryJob(monitor.CartExpiryJobParams{
		Logger:  logg,
		Cart:    cartSvc,
		Metrics: jobMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart expiry job", err)
		os.Exit(1)
	}

	notificationCleanup, err := monitor.NewNotificationCleanupJob(monitor.NotificationCleanupJobParams{
		Logger:        logg,
		Notifications: notificationSvc,
		Metrics:       jobMetrics,
		RetentionDays: cfg.Notification.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification cleanup job", err)
		os.Exit(1)
	}

	service, err := monitor.NewService(monitor.ServiceParams{
		Logger:       logg,
		Registry:     monitor.NewRegistry(priceSweep, cartExpiry, notificationCleanup),
		Lock:         lock,
		Metrics:      jobMetrics,
		InitialDelay: cfg.Monitor.InitialDelay,
		Interval:     cfg.Monitor.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create monitor service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting monitor worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "monitor worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "monitor worker stopped")
}
