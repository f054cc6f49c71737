package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clubemecanico/courses-backend/api/routes"
	"github.com/clubemecanico/courses-backend/internal/cart"
	"github.com/clubemecanico/courses-backend/internal/checkout"
	"github.com/clubemecanico/courses-backend/internal/enrollments"
	"github.com/clubemecanico/courses-backend/internal/gatewayevents"
	"github.com/clubemecanico/courses-backend/internal/orders"
	"github.com/clubemecanico/courses-backend/internal/reconciliation"
	"github.com/clubemecanico/courses-backend/internal/sessions"
	"github.com/clubemecanico/courses-backend/pkg/config"
	"github.com/clubemecanico/courses-backend/pkg/db"
	"github.com/clubemecanico/courses-backend/pkg/instance"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/mercadopago"
	"github.com/clubemecanico/courses-backend/pkg/metrics"
	"github.com/clubemecanico/courses-backend/pkg/migrate"
	"github.com/clubemecanico/courses-backend/pkg/outbox"
	"github.com/clubemecanico/courses-backend/pkg/outbox/idempotency"
	"github.com/clubemecanico/courses-backend/pkg/redis"
)

const (
	serviceKind       = "api"
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "instance": instance.GetID()})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	services, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		ReadHeaderTimeout: readHeaderTimeout,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, prometheus.DefaultGatherer, services),
	}
	return serve(logg.WithField(ctx, "addr", server.Addr), logg, server)
}

// buildServices wires the storefront and webhook services over one database and Redis.
func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Services, error) {
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	gateway, err := mercadopago.NewClient(mercadopago.ClientParams{
		Config:  cfg.MercadoPago,
		Metrics: paymentMetrics,
		Logger:  logg,
	})
	if err != nil {
		return routes.Services{}, fmt.Errorf("create mercadopago client: %w", err)
	}
	webhookGuard, err := idempotency.NewManager(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		return routes.Services{}, fmt.Errorf("create webhook guard: %w", err)
	}

	conn := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	cartRepo := cart.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	sessionsRepo := sessions.NewRepository(conn)

	var svc routes.Services
	if svc.Sessions, err = sessions.NewService(sessionsRepo); err != nil {
		return svc, fmt.Errorf("create class session service: %w", err)
	}
	if svc.Cart, err = cart.NewService(cart.ServiceParams{
		Repo:     cartRepo,
		Sessions: sessionsRepo,
		Seats:    svc.Sessions,
		Logger:   logg,
	}); err != nil {
		return svc, fmt.Errorf("create cart service: %w", err)
	}
	if svc.Checkout, err = checkout.NewService(checkout.ServiceParams{
		Tx:          dbClient,
		Cart:        cartRepo,
		Orders:      ordersRepo,
		Outbox:      outboxService,
		Gateway:     gateway,
		Discounts:   checkout.NewCouponPolicy(cfg.Checkout),
		App:         cfg.App,
		Checkout:    cfg.Checkout,
		MercadoPago: cfg.MercadoPago,
		Metrics:     paymentMetrics,
		Logger:      logg,
	}); err != nil {
		return svc, fmt.Errorf("create checkout service: %w", err)
	}
	if svc.Orders, err = orders.NewService(orders.ServiceParams{
		Repo:   ordersRepo,
		Tx:     dbClient,
		Outbox: outboxService,
		Logger: logg,
	}); err != nil {
		return svc, fmt.Errorf("create orders service: %w", err)
	}
	if svc.Reconciliation, err = reconciliation.NewService(reconciliation.ServiceParams{
		Tx:          dbClient,
		Orders:      ordersRepo,
		Enrollments: enrollments.NewRepository(conn),
		Sessions:    sessionsRepo,
		Events:      gatewayevents.NewRepository(conn),
		Outbox:      outboxService,
		Gateway:     gateway,
		Guard:       webhookGuard,
		StrictSeats: cfg.Checkout.StrictSeats,
		Metrics:     paymentMetrics,
		Logger:      logg,
	}); err != nil {
		return svc, fmt.Errorf("create reconciliation service: %w", err)
	}
	return svc, nil
}

// serve runs server until it fails or ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	logg.Info(ctx, "starting api server")
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.WithoutCancel(ctx), "error closing "+what, err)
	}
}
