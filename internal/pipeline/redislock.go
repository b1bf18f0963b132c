package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	redisLockPrefix = "guias:lock:"
	redisLockRetry  = 200 * time.Millisecond
)

// RedisLocker serializes entity work across processes sharing an inbox.
// Held locks are refreshed at half their TTL until released.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisClient connects to the Redis server at url.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "pipeline: redis ping")
	}
	return client, nil
}

// NewRedisLocker creates a RedisLocker on an existing client.
func NewRedisLocker(client redislock.RedisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl}
}

// Lock retries until the lock is obtained or ctx is done. The held context
// is cancelled with ErrLockLost when a refresh fails.
func (r *RedisLocker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	lock, err := r.client.Obtain(ctx, redisLockPrefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(redisLockRetry),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, eris.Wrapf(err, "pipeline: obtain lock %s", key)
	}

	held, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	stop := make(chan struct{})
	done := make(chan struct{})
	go r.refresh(lock, key, cancel, stop, done)

	var once sync.Once
	return held, func() {
		once.Do(func() {
			close(stop)
			<-done
			cancel(nil)
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				zap.L().Warn("pipeline: release redis lock failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

// refresher is the part of *redislock.Lock the refresh loop needs.
type refresher interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
}

// refresh extends the lock at half its TTL. When an extension fails the lock
// may already belong to another process, so the holder is told through
// lost.
func (r *RedisLocker) refresh(lock refresher, key string, lost context.CancelCauseFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := lock.Refresh(context.Background(), r.ttl, nil); err != nil {
				zap.L().Error("pipeline: refresh redis lock failed", zap.String("key", key), zap.Error(err))
				lost(fmt.Errorf("%w: %s: %v", ErrLockLost, key, err))
				return
			}
		}
	}
}
