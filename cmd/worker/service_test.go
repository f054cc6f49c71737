package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/clubemecanico/courses-backend/pkg/logger"
)

type stubPinger struct {
	failures int
	err      error
	calls    int
}

func (s *stubPinger) Ping(context.Context) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return nil
}

type stubRunner struct {
	err   error
	calls int
}

func (s *stubRunner) Run(ctx context.Context) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, redis *stubPinger, consumer runner) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:               testLogger(),
		DB:                   &stubPinger{},
		Redis:                redis,
		PubSub:               &stubPinger{},
		NotificationConsumer: consumer,
		ReadyAttempts:        3,
		ReadyBackoff:         time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: testLogger(),
		DB:     &stubPinger{},
		Redis:  &stubPinger{},
		PubSub: &stubPinger{},
	})
	if err == nil {
		t.Fatal("expected missing consumer to fail")
	}

	_, err = NewService(ServiceParams{
		Logger:               testLogger(),
		DB:                   &stubPinger{},
		PubSub:               &stubPinger{},
		NotificationConsumer: &stubRunner{},
	})
	if err == nil || err.Error() != "redis client is required" {
		t.Fatalf("expected missing redis to fail, got %v", err)
	}
}

func TestRunWaitsForSlowDependency(t *testing.T) {
	redis := &stubPinger{failures: 2, err: errors.New("connection refused")}
	consumer := &stubRunner{err: errors.New("subscription deleted")}
	svc := newTestService(t, redis, consumer)

	if err := svc.Run(context.Background()); err == nil || err.Error() != "subscription deleted" {
		t.Fatalf("expected consumer error, got %v", err)
	}
	if redis.calls != 3 {
		t.Fatalf("expected 3 redis pings, got %d", redis.calls)
	}
	if consumer.calls != 1 {
		t.Fatalf("consumer should start once, got %d calls", consumer.calls)
	}
}

func TestRunGivesUpOnDeadDependency(t *testing.T) {
	redis := &stubPinger{failures: 10, err: errors.New("connection refused")}
	consumer := &stubRunner{}
	svc := newTestService(t, redis, consumer)

	err := svc.Run(context.Background())
	if err == nil || err.Error() != "redis ping failed: connection refused" {
		t.Fatalf("expected readiness failure, got %v", err)
	}
	if redis.calls != 3 {
		t.Fatalf("expected 3 redis pings, got %d", redis.calls)
	}
	if consumer.calls != 0 {
		t.Fatalf("consumer should not start, got %d calls", consumer.calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	svc := newTestService(t, &stubPinger{}, &stubRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
