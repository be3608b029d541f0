// Package lock provides path guards that keep two workers from processing the same organized path at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultTTL = 5 * time.Minute

// RedisGuard holds a redislock per path for the lifetime of one invocation.
type RedisGuard struct {
	locker *redislock.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisGuard(rdb redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisGuard{locker: redislock.New(rdb), prefix: prefix, ttl: ttl, logger: logger}
}

func (g *RedisGuard) TryLock(ctx context.Context, key string) (func(), bool, error) {
	name := g.prefix + key
	l, err := g.locker.Obtain(ctx, name, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain lock %s: %w", name, err)
	}
	release := func() {
		// the invocation context may already be done
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			g.logger.Warn("lock.release.failed", zap.String("key", name), zap.Error(err))
		}
	}
	return release, true, nil
}

// LocalGuard is an in-process guard for single-instance deployments.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) TryLock(_ context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, false, nil
	}
	g.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, true, nil
}

// Ping checks the redis connection used by a guard.
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	return rdb.Ping(ctx).Err()
}
