package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockRetry = 25 * time.Millisecond
	maxLockRetry     = 250 * time.Millisecond
)

// releaseScript deletes a key only if it still carries our token, so an
// expired lock re-acquired by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds resource locks in Redis so every API replica sees the
// same lock set.
type RedisLocker struct {
	redis  *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *logging.Logger
}

// NewRedisLocker builds a locker. ttl bounds how long a crashed holder can
// block others; wait bounds acquisition when ctx has no earlier deadline.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, logger *logging.Logger) *RedisLocker {
	if client == nil {
		panic("scheduling: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLocker{redis: client, ttl: ttl, wait: wait, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = sortedKeys(keys)
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	token := uuid.NewString()
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.acquire(ctx, key, token); err != nil {
			l.release(held, token)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(held, token) })
	}, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	backoff := defaultLockRetry
	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return fmt.Errorf("%w: %s: %v", ErrResourceBusy, key, err)
			}
			return fmt.Errorf("scheduling: acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %v", ErrResourceBusy, key, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxLockRetry {
			backoff = maxLockRetry
		}
	}
}

// release runs with a fresh context: the caller's may already be done.
func (l *RedisLocker) release(held []string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(held) - 1; i >= 0; i-- {
		if err := releaseScript.Run(ctx, l.redis, []string{held[i]}, token).Err(); err != nil {
			l.logger.Warn("failed to release scheduling lock", "key", held[i], "error", err)
		}
	}
}
