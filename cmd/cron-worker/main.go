package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clubemecanico/courses-backend/internal/cron"
	"github.com/clubemecanico/courses-backend/internal/orders"
	"github.com/clubemecanico/courses-backend/pkg/config"
	"github.com/clubemecanico/courses-backend/pkg/db"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/metrics"
	"github.com/clubemecanico/courses-backend/pkg/migrate"
	"github.com/clubemecanico/courses-backend/pkg/outbox"
	"github.com/clubemecanico/courses-backend/pkg/redis"
)

const serviceKind = "cron-worker"

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
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

// run schedules orphan-order expiry and outbox retention behind a single Redis lease.
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

	schedule, err := buildSchedule(cfg, dbClient, logg)
	if err != nil {
		return err
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind), 0)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Schedule: schedule,
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.DefaultRegisterer),
		Tick:     cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func buildSchedule(cfg *config.Config, dbClient *db.Client, logg *logger.Logger) (*cron.Schedule, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:   orders.NewRepository(conn),
		Tx:     dbClient,
		Outbox: outbox.NewService(outboxRepo, logg),
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("create orders service: %w", err)
	}
	expiry, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Orders:    ordersService,
		OrphanTTL: cfg.Cron.OrphanOrderTTL,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment expiry job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("create outbox retention job: %w", err)
	}
	return cron.NewSchedule().
		Add(expiry, 0).
		Add(retention, cfg.Cron.RetentionEvery), nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.WithoutCancel(ctx), "error closing "+what, err)
	}
}
