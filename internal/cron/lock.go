package cron

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 10 * time.Minute

// ErrLockHeld is returned by Acquire when another worker owns the cycle.
var ErrLockHeld = errors.New("cron lock held by another worker")

// Lock hands out one exclusive lease per cron cycle.
type Lock interface {
	Acquire(ctx context.Context) (Lease, error)
}

// Lease is an acquired lock. Release is a no-op once the lease expired or was taken over.
type Lease interface {
	Holder() string
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	DeleteIfHolder(ctx context.Context, key, holder string) (bool, error)
}

// RedisLock stores the lease holder under key with a TTL, so a crashed worker frees the
// cycle once the TTL lapses. Holders are "<hostname>/<uuid>" to show which worker owns it.
type RedisLock struct {
	store redisStore
	key   string
	ttl   time.Duration
	host  string
}

func NewRedisLock(store redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "cron-worker"
	}
	return &RedisLock{store: store, key: key, ttl: ttl, host: host}, nil
}

// Acquire returns ErrLockHeld, wrapped with the current holder when readable, if the key
// is already set.
func (l *RedisLock) Acquire(ctx context.Context) (Lease, error) {
	holder := l.host + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, holder, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if !ok {
		current, getErr := l.store.Get(ctx, l.key)
		if getErr != nil || current == "" {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, current)
	}
	return &redisLease{lock: l, holder: holder}, nil
}

type redisLease struct {
	lock     *RedisLock
	holder   string
	released bool
}

func (l *redisLease) Holder() string { return l.holder }

// Release deletes the key only while it still names this lease.
func (l *redisLease) Release(ctx context.Context) error {
	if l.released {
		return nil
	}
	if _, err := l.lock.store.DeleteIfHolder(ctx, l.lock.key, l.holder); err != nil {
		return fmt.Errorf("release lock %s: %w", l.lock.key, err)
	}
	l.released = true
	return nil
}
