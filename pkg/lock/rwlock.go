package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 读锁：存在写锁时失败，否则读计数加一并续期
var readLockScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
return 1
`)

// 读锁释放：计数减到零时删除计数键
var readUnlockScript = redis.NewScript(`
local n = redis.call("DECR", KEYS[1])
if n <= 0 then
	redis.call("DEL", KEYS[1])
end
return n
`)

// 写锁：存在任一读者或其他写者时失败
var writeLockScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
local readers = tonumber(redis.call("GET", KEYS[2]) or "0")
if readers > 0 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// RWLock 按资源名划分的读写锁
// 分组迁移持写锁，跳转重建缓存与监控落库持读锁
type RWLock struct {
	c   *Client
	key string
}

func (c *Client) RWLock(key string) *RWLock {
	return &RWLock{c: c, key: key}
}

func (rw *RWLock) writeKey() string { return rw.key + ":write" }
func (rw *RWLock) readKey() string  { return rw.key + ":readers" }

// ReadLock 一次成功的读加锁
type ReadLock struct {
	rw *RWLock
}

// RLock 短等待获取读锁
func (rw *RWLock) RLock(ctx context.Context, ttl, wait time.Duration) (*ReadLock, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		n, err := readLockScript.Run(ctx, rw.c.rdb,
			[]string{rw.writeKey(), rw.readKey()}, ttl.Milliseconds()).Int()
		if err != nil {
			return nil, false, err
		}
		if n == 1 {
			return &ReadLock{rw: rw}, true, nil
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

func (l *ReadLock) Unlock(ctx context.Context) error {
	return readUnlockScript.Run(ctx, l.rw.c.rdb, []string{l.rw.readKey()}).Err()
}

// TryLockWrite 非阻塞获取写锁，存在读者或写者时立即失败
func (rw *RWLock) TryLockWrite(ctx context.Context, ttl time.Duration) (*Lock, bool, error) {
	token := uuid.NewString()
	n, err := writeLockScript.Run(ctx, rw.c.rdb,
		[]string{rw.writeKey(), rw.readKey()}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	return &Lock{c: rw.c, key: rw.writeKey(), token: token}, true, nil
}
