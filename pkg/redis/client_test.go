package redis

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/clubemecanico/courses-backend/pkg/config"
)

func TestSetNXOnlyFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.IdempotencyKey("mercadopago-webhook", "123")

	ok, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "clube:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "clube:idempotency:scope", client.IdempotencyKey("scope", " "))
	require.Equal(t, "clube:lock:cron-worker", client.LockKey("cron-worker"))
	require.Equal(t, "clube:rate_limit:checkout:user:7", client.RateLimitKey("checkout", "user", "7"))
}

func TestIdempotencyKeyDigestsLongClientIDs(t *testing.T) {
	client := &Client{}
	long := strings.Repeat("a", 500)

	key := client.IdempotencyKey("7|POST|/api/v1/checkout", long)
	require.True(t, strings.HasPrefix(key, "clube:idempotency:7|POST|/api/v1/checkout:sha256-"))
	require.Less(t, len(key), 120)
	require.Equal(t, key, client.IdempotencyKey("7|POST|/api/v1/checkout", long))
	require.NotEqual(t, key, client.IdempotencyKey("7|POST|/api/v1/checkout", long+"b"))
}

func TestIncrWithTTLOpensWindowOnFirstHit(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for want := int64(1); want <= 3; want++ {
		count, err := client.IncrWithTTL(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
	}
	require.Equal(t, []time.Duration{time.Minute}, mock.expireCalls)
}

func TestIncrWithTTLRepairsCounterWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	mock.counters["k"] = 41
	client := &Client{store: mock}

	count, err := client.IncrWithTTL(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(42), count)
	require.Equal(t, []time.Duration{time.Minute}, mock.expireCalls)

	_, err = client.IncrWithTTL(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.Len(t, mock.expireCalls, 1)
}

func TestDeleteIfHolder(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	mock.data["clube:lock:cron-worker"] = "host-b/2"

	removed, err := client.DeleteIfHolder(ctx, "clube:lock:cron-worker", "host-a/1")
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, "host-b/2", mock.data["clube:lock:cron-worker"])

	removed, err = client.DeleteIfHolder(ctx, "clube:lock:cron-worker", "host-b/2")
	require.NoError(t, err)
	require.True(t, removed)
	require.Empty(t, mock.data)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	require.Error(t, client.Ping(context.Background()))
	_, err := client.SetNX(context.Background(), "k", "v", time.Second)
	require.Error(t, err)
	_, err = client.DeleteIfHolder(context.Background(), "k", "v")
	require.ErrorIs(t, err, errNotInitialized)
	require.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 7, opts.PoolSize)
	require.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3, Password: "s3cret"})
	require.NoError(t, err)
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, "s3cret", opts.Password)
}

// mockCmdable keeps values, counters and expiries in memory. EvalSha runs the
// compare-and-delete script directly.
type mockCmdable struct {
	data        map[string]string
	counters    map[string]int64
	expiries    map[string]time.Duration
	expireCalls []time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     map[string]string{},
		counters: map[string]int64{},
		expiries: map[string]time.Duration{},
	}
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expiration)
	m.expiries[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) TTL(_ context.Context, key string) *redis.DurationCmd {
	if ttl, ok := m.expiries[key]; ok {
		return redis.NewDurationResult(ttl, nil)
	}
	return redis.NewDurationResult(-1, nil)
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			n++
		}
		delete(m.data, key)
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	if m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func (m *mockCmdable) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, "", keys, args...)
}

func (m *mockCmdable) EvalRO(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, "", keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, "", keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}
