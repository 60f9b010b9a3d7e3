package service

import (
	"context"
	"time"

	"shortlink-platform/pkg/lock"
)

// redisLocker 把 pkg/lock 的 Redis 锁客户端适配成 Locker 能力
type redisLocker struct {
	c *lock.Client
}

func NewRedisLocker(c *lock.Client) Locker {
	return &redisLocker{c: c}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Unlocker, bool, error) {
	lk, ok, err := l.c.Acquire(ctx, key, ttl, wait)
	if !ok || err != nil {
		return nil, ok, err
	}
	return lk, true, nil
}

func (l *redisLocker) RLock(ctx context.Context, key string, ttl, wait time.Duration) (Unlocker, bool, error) {
	rl, ok, err := l.c.RWLock(key).RLock(ctx, ttl, wait)
	if !ok || err != nil {
		return nil, ok, err
	}
	return rl, true, nil
}

func (l *redisLocker) TryLockWrite(ctx context.Context, key string, ttl time.Duration) (Unlocker, bool, error) {
	wl, ok, err := l.c.RWLock(key).TryLockWrite(ctx, ttl)
	if !ok || err != nil {
		return nil, ok, err
	}
	return wl, true, nil
}
