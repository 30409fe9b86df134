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

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/internal/stock"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
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
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe client", err)
		os.Exit(1)
	}
	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		logg.Error(ctx, "failed to create payment gateway", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, stripeClient, gateway, registry)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shutting down gracefully")
	}
}

func buildDependencies(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	stripeClient *stripe.Client,
	gateway payments.Gateway,
	registry *prometheus.Registry,
) (routes.Dependencies, error) {
	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	catalogReader := catalog.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	ledger := stock.NewLedger()

	cartService, err := cart.NewService(cartRepo, catalogReader, time.Now)
	if err != nil {
		return routes.Dependencies{}, err
	}

	validator, err := coupons.NewValidator(coupons.ValidatorParams{
		Repository: coupons.NewRepository(conn),
		Outbox:     emitter,
		Logger:     logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	couponService, err := coupons.NewService(coupons.ServiceParams{
		Repository: coupons.NewRepository(conn),
		Checker:    validator,
		Carts:      cartRepo,
		Catalog:    catalogReader,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		TransactionRunner: dbClient,
		Carts:             cartService,
		Catalog:           catalogReader,
		Coupons:           validator,
		Redeemer:          validator,
		Orders:            orderRepo,
		Gateway:           gateway,
		Stock:             ledger,
		Outbox:            emitter,
		Observer:          metrics.NewCheckoutMetrics(registry),
		Logger:            logg,
		Currency:          cfg.Stripe.Currency,
		CODCurrency:       cfg.Checkout.CODCurrency,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repository:        orderRepo,
		TransactionRunner: dbClient,
		Outbox:            emitter,
		Gateway:           gateway,
		Stock:             ledger,
		Logger:            logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	refundService, err := refunds.NewService(refunds.ServiceParams{
		TransactionRunner: dbClient,
		Orders:            orderRepo,
		Gateway:           gateway,
		Outbox:            emitter,
		Logger:            logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	reconciler, err := reconcile.NewReconciler(reconcile.ServiceParams{
		TransactionRunner: dbClient,
		Orders:            orderRepo,
		Stock:             ledger,
		Coupons:           validator,
		Carts:             cartService,
		Gateway:           gateway,
		Outbox:            emitter,
		Logger:            logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{Reconciler: reconciler})
	if err != nil {
		return routes.Dependencies{}, err
	}
	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Stripe.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Readiness: []controllers.ReadinessCheck{
			{Name: "database", Pinger: dbClient},
			{Name: "redis", Pinger: redisClient},
		},
		Store:           redisClient,
		Gatherer:        registry,
		Requests:        metrics.NewHTTPMetrics(registry),
		Carts:           cartService,
		Checkout:        checkoutService,
		Coupons:         couponService,
		Orders:          orderService,
		Refunds:         refundService,
		WebhookService:  webhookService,
		WebhookVerifier: stripeClient,
		WebhookGuard:    guard,
		WebhookMetrics:  metrics.NewWebhookMetrics(registry),
	}, nil
}
