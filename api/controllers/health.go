package controllers

import (
	"net/http"

	"github.com/leafline-books/leafline-backend/api/responses"
	"github.com/leafline-books/leafline-backend/pkg/config"
	"github.com/leafline-books/leafline-backend/pkg/db"
	pkgerrors "github.com/leafline-books/leafline-backend/pkg/errors"
	"github.com/leafline-books/leafline-backend/pkg/logger"
	"github.com/leafline-books/leafline-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Leafline-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when the backing stores answer.
// Redis being down is not fatal: the API degrades to offline queue
// behavior, so it is reported but does not fail the check.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger db.Pinger, redisPinger redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-Leafline-Env", cfg.App.Env)

		deps := map[string]string{}

		if dbPinger == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "database not configured"))
			return
		}
		if err := dbPinger.Ping(ctx); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
			return
		}
		deps["database"] = "ok"

		deps["redis"] = "ok"
		if redisPinger == nil {
			deps["redis"] = "not configured"
		} else if err := redisPinger.Ping(ctx); err != nil {
			deps["redis"] = "unreachable"
			if logg != nil {
				logg.Warn(ctx, "redis unreachable during readiness check")
			}
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "dependencies": deps})
	}
}
