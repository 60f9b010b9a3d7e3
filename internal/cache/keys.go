package cache

import "fmt"

// 分布式锁键名，与缓存键同属一套 Redis 命名空间

// GotoLockKey 跳转回源重建缓存的互斥锁
func GotoLockKey(fullShortURL string) string {
	return fmt.Sprintf("short-link:lock:goto:%s", fullShortURL)
}

// GroupMoveLockKey 分组迁移读写锁：迁移持写锁，缓存重建与监控落库持读锁
func GroupMoveLockKey(fullShortURL string) string {
	return fmt.Sprintf("short-link:lock:update-gid:%s", fullShortURL)
}
