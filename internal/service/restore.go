package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shortlink-platform/internal/cache"
	"shortlink-platform/internal/errs"
	"shortlink-platform/internal/stats"
)

func gotoLockKey(fullShortURL string) string      { return cache.GotoLockKey(fullShortURL) }
func groupMoveLockKey(fullShortURL string) string { return cache.GroupMoveLockKey(fullShortURL) }

// Visitor 一次跳转请求的客户端信息，由接入层解析后传入
type Visitor struct {
	IP      string
	Os      string
	Browser string
	Device  string
	Network string
	// UvCookie 请求带来的访客标识，空表示新访客
	UvCookie string
	// SetUvCookie 需要给新访客种 cookie 时的回调
	SetUvCookie func(uv string)
}

// Restore 短链接跳转：过滤器 -> 缓存 -> 锁 -> 数据库 -> 缓存回填
// 未命中一律返回 ErrLinkNotFound，对外呈现 notfound 页而非 5xx
func (s *LinkService) Restore(ctx context.Context, fullShortURL string, visitor *Visitor) (string, error) {
	// 1. 缓存命中直接返回，这是绝大多数请求的快路径
	target, hit, err := s.cache.GetTarget(ctx, fullShortURL)
	if err != nil {
		// 缓存不可用时降级回源，而不是让跳转失败
		s.logger.Warnf("跳转缓存读取失败，降级回源, full_short_url=%s, err=%v", fullShortURL, err)
	}
	if hit {
		s.emitVisit(ctx, fullShortURL, "", visitor)
		return target, nil
	}

	// 2. 布隆过滤器判 "一定不存在" 直接拦截，保护数据库不被不存在的 key 打穿
	contains, err := s.filter.Contains(ctx, fullShortURL)
	if err != nil {
		// 过滤器不可用时按 "可能存在" 处理
		s.logger.Warnf("布隆过滤器不可用, full_short_url=%s, err=%v", fullShortURL, err)
	} else if !contains {
		return "", errs.ErrLinkNotFound
	}

	// 3. 空值墓碑：确认过不存在或已过期的 URL 在 TTL 内不再回源
	tombstone, err := s.cache.HasTombstone(ctx, fullShortURL)
	if err != nil {
		s.logger.Warnf("空值墓碑读取失败, full_short_url=%s, err=%v", fullShortURL, err)
	}
	if tombstone {
		return "", errs.ErrLinkNotFound
	}

	// 4. 拿互斥锁，同一 key 的并发回源只放行一个，其余等它回填
	// 锁服务报错（而非抢锁超时）说明依赖故障，此时跳过击穿保护
	// 直接回源，有效链接不能因为一次 Redis 故障整段不可用
	degraded := false
	l, ok, err := s.locks.Acquire(ctx, gotoLockKey(fullShortURL), gotoLockTTL, gotoLockWait)
	switch {
	case err != nil:
		s.logger.Warnf("锁服务不可用，跳过击穿保护直接回源, full_short_url=%s, err=%v", fullShortURL, err)
		degraded = true
	case !ok:
		return "", errs.ErrDependencyUnavailable
	default:
		defer l.Unlock(ctx)

		// 5. 拿到锁后再查一遍缓存，竞争者可能刚刚回填过
		target, hit, err = s.cache.GetTarget(ctx, fullShortURL)
		if err != nil {
			s.logger.Warnf("跳转缓存二次读取失败, full_short_url=%s, err=%v", fullShortURL, err)
		}
		if hit {
			s.emitVisit(ctx, fullShortURL, "", visitor)
			return target, nil
		}

		// 回源与缓存回填持分组迁移读锁，迁移进行中不能缓存到旧分组关联
		rl, rlOK, err := s.locks.RLock(ctx, groupMoveLockKey(fullShortURL), readLockTTL, readLockWait)
		switch {
		case err != nil:
			s.logger.Warnf("读锁服务不可用，降级回源且不回填缓存, full_short_url=%s, err=%v", fullShortURL, err)
			degraded = true
		case !rlOK:
			return "", errs.ErrResourceBusy
		default:
			defer rl.Unlock(ctx)
		}
	}

	// 6. 先查路由表定位分组，再按 (url, gid) 查存活链接
	gt, err := s.repo.FindGotoByURL(ctx, fullShortURL)
	if err != nil {
		return "", err
	}
	if gt == nil {
		s.setTombstone(ctx, fullShortURL)
		return "", errs.ErrLinkNotFound
	}

	link, err := s.repo.FindLiveByURL(ctx, fullShortURL, gt.Gid)
	if err != nil {
		return "", err
	}
	if link == nil || link.Expired(time.Now()) {
		s.setTombstone(ctx, fullShortURL)
		return "", errs.ErrLinkNotFound
	}

	// 7. 回填正向缓存，TTL 由剩余有效期换算
	// 降级路径没有读锁保护，不回填，避免把迁移中的旧分组关联写进缓存
	if !degraded {
		if err := s.cache.SetTarget(ctx, fullShortURL, link.OriginURL, link.ValidDate); err != nil {
			s.logger.Warnf("跳转缓存回填失败, full_short_url=%s, err=%v", fullShortURL, err)
		}
	}

	s.emitVisit(ctx, fullShortURL, link.Gid, visitor)
	return link.OriginURL, nil
}

func (s *LinkService) setTombstone(ctx context.Context, fullShortURL string) {
	if err := s.cache.SetTombstone(ctx, fullShortURL); err != nil {
		s.logger.Warnf("空值墓碑写入失败, full_short_url=%s, err=%v", fullShortURL, err)
	}
}

// emitVisit 组装访问事件并异步投递，任何失败只记日志，绝不影响跳转响应
func (s *LinkService) emitVisit(ctx context.Context, fullShortURL, gid string, visitor *Visitor) {
	if visitor == nil {
		return
	}

	uv := visitor.UvCookie
	uvFirst := false
	if uv == "" {
		uv = uuid.NewString()
		if visitor.SetUvCookie != nil {
			visitor.SetUvCookie(uv)
		}
	}
	first, err := s.cache.AddUv(ctx, fullShortURL, uv)
	if err != nil {
		s.logger.Warnf("uv 集合写入失败, full_short_url=%s, err=%v", fullShortURL, err)
	} else {
		uvFirst = first
	}

	uipFirst := false
	first, err = s.cache.AddUip(ctx, fullShortURL, visitor.IP)
	if err != nil {
		s.logger.Warnf("uip 集合写入失败, full_short_url=%s, err=%v", fullShortURL, err)
	} else {
		uipFirst = first
	}

	s.producer.RecordVisit(stats.Record{
		FullShortURL: fullShortURL,
		Gid:          gid,
		UvFirst:      uvFirst,
		UipFirst:     uipFirst,
		ClientIP:     visitor.IP,
		Os:           visitor.Os,
		Browser:      visitor.Browser,
		Device:       visitor.Device,
		Network:      visitor.Network,
		Visitor:      uv,
		VisitTime:    time.Now(),
	})
}
