package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/clubemecanico/courses-backend/pkg/logger"
)

const (
	defaultReadyAttempts = 5
	defaultReadyBackoff  = 500 * time.Millisecond
)

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type dependency struct {
	name string
	ping pinger
}

// ServiceParams wires the email worker. ReadyAttempts and ReadyBackoff bound how long the
// worker waits for its dependencies at boot; zero values use the defaults.
type ServiceParams struct {
	Logger               *logger.Logger
	DB                   pinger
	Redis                pinger
	PubSub               pinger
	NotificationConsumer runner
	ReadyAttempts        uint64
	ReadyBackoff         time.Duration
}

// Service consumes the notification subscription once the database, Redis and Pub/Sub answer.
type Service struct {
	logg     *logger.Logger
	deps     []dependency
	consumer runner
	attempts uint64
	backoff  time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.NotificationConsumer == nil:
		return nil, errors.New("notification consumer is required")
	}
	deps := []dependency{
		{name: "database", ping: params.DB},
		{name: "redis", ping: params.Redis},
		{name: "pubsub", ping: params.PubSub},
	}
	for _, dep := range deps {
		if dep.ping == nil {
			return nil, fmt.Errorf("%s client is required", dep.name)
		}
	}

	svc := &Service{
		logg:     params.Logger,
		deps:     deps,
		consumer: params.NotificationConsumer,
		attempts: params.ReadyAttempts,
		backoff:  params.ReadyBackoff,
	}
	if svc.attempts == 0 {
		svc.attempts = defaultReadyAttempts
	}
	if svc.backoff <= 0 {
		svc.backoff = defaultReadyBackoff
	}
	return svc, nil
}

// Run blocks on the notification consumer until ctx is cancelled or the subscription fails.
func (s *Service) Run(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := s.await(ctx, dep); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "worker dependencies ready")

	err := s.consumer.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "notification consumer stopped unexpectedly", err)
		return err
	}
	s.logg.Info(ctx, "worker context canceled")
	return ctx.Err()
}

func (s *Service) await(ctx context.Context, dep dependency) error {
	attempt := 0
	backoff := retry.WithMaxRetries(s.attempts-1, retry.NewExponential(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := dep.ping.Ping(ctx); err != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"dependency": dep.name,
				"attempt":    attempt,
				"error":      err.Error(),
			}), "worker dependency not ready")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logg.Error(ctx, dep.name+" ping failed", err)
		return fmt.Errorf("%s ping failed: %w", dep.name, err)
	}
	return nil
}
