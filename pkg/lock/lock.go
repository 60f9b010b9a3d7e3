package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld 解锁时发现锁已不属于当前持有者
var ErrNotHeld = errors.New("锁已失效或不属于当前持有者")

const pollInterval = 50 * time.Millisecond

// 通过 token 比对保证只有持有者能释放锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client 基于 Redis 实现的命名互斥锁服务
type Client struct {
	rdb *redis.Client
}

func NewClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Lock 一次成功的加锁，Unlock 释放
type Lock struct {
	c     *Client
	key   string
	token string
}

// TryAcquire 非阻塞加锁，锁被占用时立即返回 ok=false
func (c *Client) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{c: c, key: key, token: token}, true, nil
}

// Acquire 短等待加锁，在 wait 时间内轮询重试，超时返回 ok=false
// 不做无限等待，依赖方卡死时调用方只会降级而不会悬挂
func (c *Client) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (*Lock, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		l, ok, err := c.TryAcquire(ctx, key, ttl)
		if err != nil || ok {
			return l, ok, err
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (l *Lock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.c.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
