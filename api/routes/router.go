package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clubemecanico/courses-backend/api/controllers"
	cartcontrollers "github.com/clubemecanico/courses-backend/api/controllers/cart"
	ordercontrollers "github.com/clubemecanico/courses-backend/api/controllers/orders"
	webhookcontrollers "github.com/clubemecanico/courses-backend/api/controllers/webhooks"
	"github.com/clubemecanico/courses-backend/api/middleware"
	"github.com/clubemecanico/courses-backend/internal/cart"
	checkoutsvc "github.com/clubemecanico/courses-backend/internal/checkout"
	"github.com/clubemecanico/courses-backend/internal/orders"
	"github.com/clubemecanico/courses-backend/internal/reconciliation"
	"github.com/clubemecanico/courses-backend/internal/sessions"
	"github.com/clubemecanico/courses-backend/pkg/config"
	"github.com/clubemecanico/courses-backend/pkg/db"
	"github.com/clubemecanico/courses-backend/pkg/enums"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	pkgredis "github.com/clubemecanico/courses-backend/pkg/redis"
)

// Store is the redis surface the HTTP layer needs: idempotent replays, rate
// limit counters and the readiness ping.
type Store interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(parts ...string) string
	Ping(ctx context.Context) error
}

// Services groups the domain services mounted on the router.
type Services struct {
	Cart           cart.Service
	Checkout       checkoutsvc.Service
	Orders         orders.Service
	Sessions       sessions.Service
	Reconciliation reconciliation.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	store Store,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.FrontendURL, cfg.App.IsDev()),
	)

	publicPolicy := middleware.NewRateLimitPolicy(
		"public",
		middleware.RateLimitByIP,
		cfg.RateLimit.Window,
		cfg.RateLimit.PublicPerIP,
	)
	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		middleware.RateLimitByUser,
		cfg.RateLimit.Window,
		cfg.RateLimit.CheckoutPerUser,
	)

	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiterStore     Store
		checks           = []controllers.ReadinessCheck{{Name: "db", Pinger: dbP}}
	)
	if store != nil {
		idempotencyStore = store
		limiterStore = store
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Pinger: store})
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Gateway notifications are never throttled: a parseable notification is always acknowledged.
	r.Post("/api/v1/webhooks/mercadopago", webhookcontrollers.MercadoPagoWebhook(svc.Reconciliation, cfg.MercadoPago.WebhookSecret, logg))

	r.With(middleware.RateLimit(publicPolicy, limiterStore, logg)).
		Get("/api/v1/class-sessions/{sessionId}/availability", controllers.ClassSessionAvailability(svc.Sessions, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleStudent, enums.UserRoleAdmin))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(svc.Cart, logg))
				r.Post("/", cartcontrollers.CartAdd(svc.Cart, logg))
				r.Delete("/{entryId}", cartcontrollers.CartRemove(svc.Cart, logg))
			})

			r.With(middleware.RateLimit(checkoutPolicy, limiterStore, logg)).
				Post("/checkout", controllers.Checkout(svc.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
			r.Get("/{orderId}/payment-status", ordercontrollers.PaymentStatus(svc.Orders, logg))
		})
	})

	return r
}
