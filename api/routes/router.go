package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/bioshop-backend/api/controllers"
	subscriptioncontrollers "github.com/angelmondragon/bioshop-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/angelmondragon/bioshop-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bioshop-backend/api/middleware"
	subscriptionsvc "github.com/angelmondragon/bioshop-backend/internal/subscriptions"
	pkgAuth "github.com/angelmondragon/bioshop-backend/pkg/auth"
	"github.com/angelmondragon/bioshop-backend/pkg/config"
	"github.com/angelmondragon/bioshop-backend/pkg/logger"
	"github.com/angelmondragon/bioshop-backend/pkg/metrics"
	"github.com/angelmondragon/bioshop-backend/pkg/redis"
)

type redisDeps interface {
	redis.Pinger
	redis.RateLimiter
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient redisDeps,
	subscriptionService subscriptionsvc.Service,
	webhookService webhookcontrollers.PaystackWebhookService,
	paystackMetrics *metrics.PaystackMetrics,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"postgres": dbP,
			"redis":    redisClient,
		}))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	initPolicy := middleware.NewRateLimitPolicy(
		"initialize-subscription",
		cfg.RateLimit.InitWindow,
		cfg.RateLimit.InitLimit,
	).WithTrustedProxies(cfg.RateLimit.TrustedProxies)

	r.Route("/functions/v1", func(r chi.Router) {
		r.Options("/initialize-subscription", preflight)
		r.With(middleware.RateLimit(initPolicy, redisClient, logg)).
			Post("/initialize-subscription", subscriptioncontrollers.InitializeSubscription(subscriptionService, paystackMetrics, logg))

		r.Options("/paystack-webhook", preflight)
		r.Post("/paystack-webhook", webhookcontrollers.PaystackWebhook(
			cfg.Paystack.SecretKey,
			cfg.Webhook.MaxBodySize,
			webhookService,
			paystackMetrics,
			logg,
		))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(
			middleware.OperatorAuth(cfg.AdminJWT, logg),
			middleware.RequireRole(logg, pkgAuth.RoleAdmin),
		)
		r.Get("/subscriptions/{profileId}", subscriptioncontrollers.AdminSubscriptionGet(subscriptionService, logg))
		r.Patch("/subscriptions/{profileId}/status", subscriptioncontrollers.AdminSubscriptionSetStatus(subscriptionService, logg))
		r.Delete("/subscriptions/{profileId}", subscriptioncontrollers.AdminSubscriptionDelete(subscriptionService, logg))
	})

	return r
}

// preflight answers OPTIONS requests the CORS middleware did not treat as a
// preflight, e.g. ones without Access-Control-Request-Method.
func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
