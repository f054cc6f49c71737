package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clubemecanico/courses-backend/pkg/redis"
)

const (
	defaultLease = 5 * time.Minute

	markerProcessing = "processing"
	markerDone       = "done"
)

// Manager dedupes gateway notifications and Pub/Sub deliveries per consumer. Claim holds
// an id for a short lease while it is handled; Complete keeps it for the full TTL. A worker
// that dies mid-delivery therefore blocks redeliveries only until the lease lapses.
// Keys look like clube:idempotency:evt:<consumer>:<id>.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	lease time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	lease := defaultLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

// Claim reports whether id was already claimed or completed; otherwise it takes the lease.
func (m *Manager) Claim(ctx context.Context, consumer, id string) (bool, error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return false, err
	}
	taken, err := m.store.SetNX(ctx, key, markerProcessing, m.lease)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Complete marks a claimed id as handled for the full TTL.
func (m *Manager) Complete(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return err
	}
	_, err = m.store.SetNX(ctx, key, markerDone, m.ttl)
	return err
}

// Release drops a claim so the next delivery of id is handled again.
func (m *Manager) Release(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, id string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("message id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, id), nil
}
