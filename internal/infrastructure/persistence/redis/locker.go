package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/learnhub/progression-engine/internal/domain/shared"
	"github.com/learnhub/progression-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED LOCK
// ══════════════════════════════════════════════════════════════════════════════

// Only the holder's token may release the lock.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockerConfig tunes lock acquisition.
type LockerConfig struct {
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration

	// RetryInterval is the pause between SET NX attempts.
	RetryInterval time.Duration

	// Breaker, when set, guards every Redis round trip. While it is open
	// Lock fails at once with shared.ErrServiceUnavailable.
	Breaker *circuitbreaker.CircuitBreaker
}

// DefaultLockerConfig returns the default lock settings.
func DefaultLockerConfig() LockerConfig {
	return LockerConfig{
		TTL:           10 * time.Second,
		RetryInterval: 25 * time.Millisecond,
	}
}

// Locker takes per-key locks with SET NX PX and releases them with a
// compare-and-delete script. The wait is bounded by ctx.
type Locker struct {
	client *Client
	config LockerConfig
}

// NewLocker creates a Locker.
func NewLocker(client *Client, cfg LockerConfig) *Locker {
	def := DefaultLockerConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	return &Locker{client: client, config: cfg}
}

// Lock blocks until key is held or ctx is done. The returned function
// releases the lock; calling it more than once is a no-op.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}

	redisKey := l.client.LockKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.config.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.tryAcquire(ctx, redisKey, token)
		if circuitbreaker.IsRejection(err) {
			return nil, shared.WrapError("redis", "Lock", shared.ErrServiceUnavailable,
				"lock store unavailable", err)
		}
		if err != nil {
			return nil, fmt.Errorf("redis: lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled; release on a fresh one.
			releaseCtx, cancel := context.WithTimeout(context.Background(), l.client.config.WriteTimeout)
			defer cancel()
			_ = unlockScript.Run(releaseCtx, l.client.rdb, []string{redisKey}, token).Err()
		})
	}, nil
}

func (l *Locker) tryAcquire(ctx context.Context, redisKey, token string) (bool, error) {
	if l.config.Breaker == nil {
		return l.client.rdb.SetNX(ctx, redisKey, token, l.config.TTL).Result()
	}
	var ok bool
	err := l.config.Breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		ok, err = l.client.rdb.SetNX(ctx, redisKey, token, l.config.TTL).Result()
		return err
	})
	return ok, err
}

// IsLockStoreFailure reports whether err means Redis itself misbehaved.
// Cancellation by the caller does not count.
func IsLockStoreFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
