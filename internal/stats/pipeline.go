package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shortlink-platform/internal/cache"
	"shortlink-platform/internal/errs"
	"shortlink-platform/internal/repository"
	"shortlink-platform/pkg/lock"
)

const (
	defaultQueueSize = 1024
	consumeTimeout   = 5 * time.Second
	readLockTTL      = 10 * time.Second
	readLockWait     = 2 * time.Second
)

// Producer 访问事件生产者，跳转热路径上只做一次非阻塞投递
type Producer struct {
	ch     chan Record
	logger *zap.SugaredLogger
}

func NewProducer(queueSize int, logger *zap.SugaredLogger) *Producer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Producer{
		ch:     make(chan Record, queueSize),
		logger: logger.Named("stats_producer"),
	}
}

// RecordVisit 投递访问事件，队列满载时丢弃并记日志，绝不阻塞跳转响应
func (p *Producer) RecordVisit(rec Record) {
	select {
	case p.ch <- rec:
	default:
		p.logger.Warnf("统计队列已满，丢弃访问事件, full_short_url=%s", rec.FullShortURL)
	}
}

// Out 消费端读取通道
func (p *Producer) Out() <-chan Record {
	return p.ch
}

// Unlocker 已获取读锁的释放句柄
type Unlocker interface {
	Unlock(ctx context.Context) error
}

// ReadLocker 分组迁移读写锁的读侧能力，消费端只需要这一侧
type ReadLocker interface {
	RLock(ctx context.Context, key string, ttl, wait time.Duration) (Unlocker, bool, error)
}

// redisReadLocker 把 pkg/lock 客户端适配成 ReadLocker
type redisReadLocker struct {
	c *lock.Client
}

func NewRedisReadLocker(c *lock.Client) ReadLocker {
	return &redisReadLocker{c: c}
}

func (l *redisReadLocker) RLock(ctx context.Context, key string, ttl, wait time.Duration) (Unlocker, bool, error) {
	rl, ok, err := l.c.RWLock(key).RLock(ctx, ttl, wait)
	if !ok || err != nil {
		return nil, ok, err
	}
	return rl, true, nil
}

// Consumer 访问事件消费者，把事件聚合进各监控表
type Consumer struct {
	repo   *repository.LinkRepository
	locks  ReadLocker
	logger *zap.SugaredLogger
}

// NewConsumer locks 允许为 nil（单测或锁服务降级），此时跳过读锁直接落库
func NewConsumer(repo *repository.LinkRepository, locks ReadLocker, logger *zap.SugaredLogger) *Consumer {
	return &Consumer{
		repo:   repo,
		locks:  locks,
		logger: logger.Named("stats_consumer"),
	}
}

// Start 启动消费循环，ctx 取消后退出
func (c *Consumer) Start(ctx context.Context, in <-chan Record) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("统计消费者已退出")
				return
			case rec := <-in:
				c.consume(rec)
			}
		}
	}()
}

// Consume 处理单条访问事件，测试里直接调用
func (c *Consumer) Consume(rec Record) error {
	return c.consume(rec)
}

func (c *Consumer) consume(rec Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), consumeTimeout)
	defer cancel()

	if rec.VisitTime.IsZero() {
		rec.VisitTime = time.Now()
	}

	// 监控行按 gid 归属，持读锁避免与分组迁移交错产生孤儿行
	locked := false
	if c.locks != nil {
		rl, ok, err := c.locks.RLock(ctx, cache.GroupMoveLockKey(rec.FullShortURL), readLockTTL, readLockWait)
		if err == nil && ok {
			locked = true
			defer rl.Unlock(ctx)
		} else {
			c.logger.Warnf("统计落库未取得读锁, full_short_url=%s, err=%v", rec.FullShortURL, err)
		}
	}

	// 事件自带的 gid 可能在排队期间被分组迁移改掉；
	// 没有读锁保护时不能信任它，一律重查路由表取当前分组
	gid := rec.Gid
	if gid == "" || (c.locks != nil && !locked) {
		gt, err := c.repo.FindGotoByURL(ctx, rec.FullShortURL)
		if err != nil {
			c.logger.Errorf("访问事件无法定位分组, full_short_url=%s, err=%v", rec.FullShortURL, err)
			return err
		}
		if gt == nil {
			c.logger.Errorf("访问事件无法定位分组, full_short_url=%s", rec.FullShortURL)
			return errs.ErrLinkNotFound
		}
		gid = gt.Gid
	}

	visit := &repository.VisitStats{
		FullShortURL: rec.FullShortURL,
		Gid:          gid,
		Time:         rec.VisitTime,
		UvFirst:      rec.UvFirst,
		UipFirst:     rec.UipFirst,
		Visitor:      rec.Visitor,
		IP:           rec.ClientIP,
		Os:           rec.Os,
		Browser:      rec.Browser,
		Device:       rec.Device,
		Network:      rec.Network,
		Country:      "未知",
		Province:     "未知",
		City:         "未知",
		Adcode:       "未知",
	}
	if err := c.repo.SaveVisitStats(ctx, visit); err != nil {
		c.logger.Errorf("短链接访问量统计异常, full_short_url=%s, err=%v", rec.FullShortURL, err)
		return err
	}
	return nil
}
