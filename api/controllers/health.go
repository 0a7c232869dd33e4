package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/bioshop-backend/api/responses"
	"github.com/angelmondragon/bioshop-backend/pkg/config"
	"github.com/angelmondragon/bioshop-backend/pkg/logger"
	"github.com/angelmondragon/bioshop-backend/pkg/types"
)

const (
	envHeader    = "X-Bioshop-Env"
	readyTimeout = 2 * time.Second
)

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteJSON(w, types.HealthStatus{Status: "live"})
	}
}

// HealthReady pings every named dependency and reports 503 if any fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		status := types.HealthStatus{Status: "ready", Checks: map[string]string{}}
		code := http.StatusOK
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				status.Status = "unavailable"
				status.Checks[name] = "error"
				code = http.StatusServiceUnavailable
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"dependency": name, "error": err.Error()}), "health.dependency_unavailable")
				}
				continue
			}
			status.Checks[name] = "ok"
		}
		responses.WriteJSONStatus(w, code, status)
	}
}
