package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	gotoKey   = "short-link:goto:%s"
	isNullKey = "short-link:is-null:%s"
	uvKey     = "short-link:stats:uv:%s:%s"  // 日期:短链接
	uipKey    = "short-link:stats:uip:%s:%s" // 日期:短链接

	// TombstoneTTL 空值墓碑有效期，期内同一 URL 不再回源
	TombstoneTTL = 30 * time.Minute
	// defaultValid 永久链接的缓存兜底有效期
	defaultValid = 30 * 24 * time.Hour
	// visitSetTTL uv/uip 按天去重集合的有效期
	visitSetTTL = 48 * time.Hour
)

// Cache 短链接跳转缓存：正向条目、空值墓碑、uv/uip 去重集合
type Cache struct {
	rdb    *redis.Client
	logger *zap.SugaredLogger
}

func New(rdb *redis.Client, logger *zap.SugaredLogger) *Cache {
	return &Cache{rdb: rdb, logger: logger}
}

// GetTarget 读正向缓存，miss 时 ok=false
func (c *Cache) GetTarget(ctx context.Context, fullShortURL string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf(gotoKey, fullShortURL)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetTarget 写正向缓存，TTL 取剩余有效期；永久链接给兜底有效期
func (c *Cache) SetTarget(ctx context.Context, fullShortURL, originURL string, validDate *time.Time) error {
	return c.rdb.Set(ctx, fmt.Sprintf(gotoKey, fullShortURL), originURL, ValidDuration(validDate)).Err()
}

func (c *Cache) DelTarget(ctx context.Context, fullShortURL string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(gotoKey, fullShortURL)).Err()
}

// HasTombstone 查空值墓碑
func (c *Cache) HasTombstone(ctx context.Context, fullShortURL string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf(isNullKey, fullShortURL)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetTombstone 确认不存在或已过期后写墓碑，抑制重复回源
func (c *Cache) SetTombstone(ctx context.Context, fullShortURL string) error {
	return c.rdb.Set(ctx, fmt.Sprintf(isNullKey, fullShortURL), "-", TombstoneTTL).Err()
}

// DelTombstone 链接续期复活时清墓碑，否则负缓存会盖住有效链接
func (c *Cache) DelTombstone(ctx context.Context, fullShortURL string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(isNullKey, fullShortURL)).Err()
}

// AddUv 访客标识入当日集合，首次加入代表今日首访
func (c *Cache) AddUv(ctx context.Context, fullShortURL, visitor string) (bool, error) {
	return c.addToDailySet(ctx, uvKey, fullShortURL, visitor)
}

// AddUip 访问 IP 入当日集合
func (c *Cache) AddUip(ctx context.Context, fullShortURL, ip string) (bool, error) {
	return c.addToDailySet(ctx, uipKey, fullShortURL, ip)
}

func (c *Cache) addToDailySet(ctx context.Context, pattern, fullShortURL, member string) (bool, error) {
	key := fmt.Sprintf(pattern, time.Now().Format("2006-01-02"), fullShortURL)
	added, err := c.rdb.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, err
	}
	// 去重结果已经到手，续期失败只记日志，不影响首访判定
	if err := c.rdb.Expire(ctx, key, visitSetTTL).Err(); err != nil {
		c.logger.Warnf("访问去重集合续期失败, key=%s, err=%v", key, err)
	}
	return added > 0, nil
}

// ValidDuration 由有效期换算缓存 TTL
func ValidDuration(validDate *time.Time) time.Duration {
	if validDate == nil {
		return defaultValid
	}
	d := time.Until(*validDate)
	if d <= 0 {
		// 已过期的链接不应写正向缓存，这里兜底给一个最短 TTL
		return time.Millisecond
	}
	return d
}
