package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryStore) DeleteIfHolder(_ context.Context, key, holder string) (bool, error) {
	if m.values[key] != holder {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

const cronLockKey = "clube:lock:cron-worker"

func TestRedisLockLeaseIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	workerA, err := NewRedisLock(store, cronLockKey, 0)
	require.NoError(t, err)
	workerB, err := NewRedisLock(store, cronLockKey, 0)
	require.NoError(t, err)

	lease, err := workerA.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, defaultLockTTL, store.ttls[cronLockKey])
	require.Equal(t, lease.Holder(), store.values[cronLockKey])
	require.True(t, strings.Contains(lease.Holder(), "/"))

	_, err = workerB.Acquire(ctx)
	require.ErrorIs(t, err, ErrLockHeld)
	require.Contains(t, err.Error(), lease.Holder())

	require.NoError(t, lease.Release(ctx))
	require.NotContains(t, store.values, cronLockKey)
	require.NoError(t, lease.Release(ctx))

	_, err = workerB.Acquire(ctx)
	require.NoError(t, err)
}

func TestRedisLeaseLeavesTakenOverLockAlone(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	lock, err := NewRedisLock(store, cronLockKey, time.Minute)
	require.NoError(t, err)
	lease, err := lock.Acquire(ctx)
	require.NoError(t, err)

	// the TTL lapsed and another worker took the cycle
	store.values[cronLockKey] = "other-host/1234"
	require.NoError(t, lease.Release(ctx))
	require.Equal(t, "other-host/1234", store.values[cronLockKey])

	delete(store.values, cronLockKey)
	require.NoError(t, lease.Release(ctx))
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, cronLockKey, 0)
	require.Error(t, err)
	_, err = NewRedisLock(newMemoryStore(), "", 0)
	require.Error(t, err)
}
