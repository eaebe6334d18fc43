package monitor

import (
	"context"
	"fmt"

	"github.com/leafline-books/leafline-backend/pkg/logger"
	"github.com/leafline-books/leafline-backend/pkg/metrics"
)

// cartPurger is the slice of the cart service the expiry job drives.
type cartPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CartExpiryJobParams configure the cart expiry sweep.
type CartExpiryJobParams struct {
	Logger  *logger.Logger
	Cart    cartPurger
	Metrics *metrics.JobMetrics
}

// NewCartExpiryJob builds the job that evicts cart lines past their
// retention window.
func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart service required")
	}
	return &cartExpiryJob{
		logg:    params.Logger,
		cart:    params.Cart,
		metrics: params.Metrics,
	}, nil
}

type cartExpiryJob struct {
	logg    *logger.Logger
	cart    cartPurger
	metrics *metrics.JobMetrics
}

func (j *cartExpiryJob) Name() string { return "cart-expiry" }

func (j *cartExpiryJob) Run(ctx context.Context) error {
	purged, err := j.cart.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("cart expiry: %w", err)
	}
	j.metrics.AddItems(j.Name(), "purged", int(purged))
	logCtx := j.logg.WithField(ctx, "rows_deleted", purged)
	j.logg.Info(logCtx, "cart expiry sweep complete")
	return nil
}
