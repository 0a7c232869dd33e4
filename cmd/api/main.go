package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bioshop-backend/api/routes"
	"github.com/angelmondragon/bioshop-backend/internal/subscriptions"
	paystackwebhook "github.com/angelmondragon/bioshop-backend/internal/webhooks/paystack"
	"github.com/angelmondragon/bioshop-backend/pkg/config"
	"github.com/angelmondragon/bioshop-backend/pkg/db"
	"github.com/angelmondragon/bioshop-backend/pkg/logger"
	"github.com/angelmondragon/bioshop-backend/pkg/metrics"
	"github.com/angelmondragon/bioshop-backend/pkg/migrate"
	"github.com/angelmondragon/bioshop-backend/pkg/outbox"
	"github.com/angelmondragon/bioshop-backend/pkg/paystack"
	"github.com/angelmondragon/bioshop-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		return err
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		return multierr.Append(err, dbClient.Close())
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		return multierr.Append(err, dbClient.Close())
	}
	defer func() {
		err = multierr.Combine(err, dbClient.Close(), redisClient.Close())
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paystackMetrics := metrics.NewPaystackMetrics(promRegistry)

	amountMinor, err := cfg.Paystack.AmountMinor()
	if err != nil {
		return err
	}
	if cfg.Paystack.SecretKey == "" {
		logg.Warn(context.Background(), "paystack secret key not set; checkout and webhooks will fail until configured")
	}

	paystackClient := paystack.NewClient(
		cfg.Paystack.SecretKey,
		paystack.WithBaseURL(cfg.Paystack.BaseURL),
		paystack.WithTimeout(cfg.Paystack.Timeout),
		paystack.WithObserver(paystackMetrics),
	)

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              subscriptions.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Outbox:            outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Provider:          paystackClient,
		PlanCode:          cfg.Paystack.PlanCode,
		AmountMinor:       amountMinor,
		Currency:          cfg.Paystack.Currency,
		PublicURL:         cfg.App.PublicURL,
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	replayGuard, err := paystackwebhook.NewReplayGuard(redisClient, cfg.Webhook.ReplayTTL)
	if err != nil {
		return err
	}
	webhookService, err := paystackwebhook.NewService(paystackwebhook.ServiceParams{
		Subscriptions: subscriptionService,
		Audit:         paystackwebhook.NewAuditRepository(dbClient.DB()),
		Guard:         replayGuard,
		Logger:        logg,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			subscriptionService,
			webhookService,
			paystackMetrics,
			promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
