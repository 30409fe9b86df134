package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Store is the redis surface shared by idempotency and rate limiting.
type Store interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies carries everything the HTTP surface is wired to. Nil services
// answer with an internal error instead of panicking.
type Dependencies struct {
	Readiness []controllers.ReadinessCheck
	Store     Store
	Gatherer  prometheus.Gatherer
	Requests  middleware.RequestObserver

	Carts    cart.Service
	Checkout checkoutsvc.Service
	Coupons  coupons.Service
	Orders   orders.Service
	Refunds  refunds.Service

	WebhookService  webhookcontrollers.StripeWebhookService
	WebhookVerifier webhookcontrollers.EventVerifier
	WebhookGuard    webhookcontrollers.StripeWebhookGuard
	WebhookMetrics  webhookcontrollers.WebhookObserver
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.Requests),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	checkoutPolicy := middleware.RateLimitPolicy{
		Name:   "checkout",
		Window: cfg.Checkout.RateLimitWindow,
		Limit:  cfg.Checkout.RateLimitPerUser,
	}
	checkoutLimit := middleware.UserRateLimit(checkoutPolicy, deps.Store, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness...))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.WebhookService, deps.WebhookVerifier, deps.WebhookGuard, deps.WebhookMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Store, logg))

		r.Get("/cart", cartcontrollers.CartFetch(deps.Carts, logg))
		r.Put("/cart", cartcontrollers.CartSave(deps.Carts, logg))
		r.Post("/cart/empty", cartcontrollers.CartEmpty(deps.Carts, logg))

		r.Post("/coupons/apply", controllers.ApplyCoupon(deps.Coupons, logg))
		r.Post("/coupons/apply-buy-now", controllers.ApplyBuyNowCoupon(deps.Coupons, logg))

		r.Group(func(r chi.Router) {
			r.Use(checkoutLimit)
			r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))
			r.Post("/checkout/buy-now", controllers.BuyNow(deps.Checkout, logg))
			r.Post("/orders/cod", controllers.PlaceCashOnDelivery(deps.Checkout, logg))
		})

		r.Get("/orders", ordercontrollers.List(deps.Orders, logg))
		r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))

			r.Post("/coupons", controllers.AdminCreateCoupon(deps.Coupons, logg))
			r.Get("/coupons", controllers.AdminListCoupons(deps.Coupons, logg))
			r.Delete("/coupons/{couponId}", controllers.AdminDeleteCoupon(deps.Coupons, logg))

			r.Get("/orders", controllers.AdminListOrders(deps.Orders, logg))
			r.Patch("/orders/{orderId}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
			r.Post("/orders/{orderId}/refund", controllers.AdminRefundOrder(deps.Refunds, logg))
			r.Post("/orders/{orderId}/partial-refund", controllers.AdminPartialRefund(deps.Refunds, logg))
		})
	})

	return r
}
