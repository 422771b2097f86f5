package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/progression-engine/internal/domain/shared"
	"github.com/learnhub/progression-engine/pkg/circuitbreaker"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "progression-test:" + uuid.NewString() + ":"

	c, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLocker_ExclusiveUntilReleased(t *testing.T) {
	c := newTestClient(t)
	l := NewLocker(c, LockerConfig{TTL: 5 * time.Second, RetryInterval: 5 * time.Millisecond})
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "user:alice")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "user:alice")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	other, err := l.Lock(ctx, "user:bob")
	require.NoError(t, err)
	other()

	unlock()
	unlock()

	again, err := l.Lock(ctx, "user:alice")
	require.NoError(t, err)
	again()
}

func TestLocker_ReleaseDoesNotStealForeignLock(t *testing.T) {
	c := newTestClient(t)
	l := NewLocker(c, LockerConfig{TTL: 50 * time.Millisecond, RetryInterval: 5 * time.Millisecond})
	ctx := context.Background()

	stale, err := l.Lock(ctx, "user:alice")
	require.NoError(t, err)

	// Let the TTL expire and have someone else take the key.
	time.Sleep(80 * time.Millisecond)
	fresh, err := l.Lock(ctx, "user:alice")
	require.NoError(t, err)

	stale()
	exists, err := c.Redis().Exists(ctx, c.LockKey("user:alice")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	fresh()
}

func TestLocker_EmptyKey(t *testing.T) {
	l := NewLocker(&Client{config: DefaultConfig()}, LockerConfig{})
	_, err := l.Lock(context.Background(), "")
	assert.ErrorIs(t, err, ErrKeyEmpty)
}

func TestLocker_BreakerOpensOnUnreachableRedis(t *testing.T) {
	cfg := DefaultConfig()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	breaker := circuitbreaker.New("test-lock",
		circuitbreaker.WithFailureThreshold(1),
		circuitbreaker.WithIsFailure(IsLockStoreFailure),
	)
	l := NewLocker(&Client{rdb: rdb, config: cfg}, LockerConfig{Breaker: breaker})

	_, err := l.Lock(context.Background(), "user:alice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	_, err = l.Lock(context.Background(), "user:alice")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestIsLockStoreFailure(t *testing.T) {
	assert.False(t, IsLockStoreFailure(nil))
	assert.False(t, IsLockStoreFailure(context.Canceled))
	assert.False(t, IsLockStoreFailure(context.DeadlineExceeded))
	assert.True(t, IsLockStoreFailure(ErrConnection))
}
