package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shortlink-platform/internal/config"
	"shortlink-platform/internal/errs"
	"shortlink-platform/internal/model"
	"shortlink-platform/internal/repository"
	"shortlink-platform/internal/stats"
)

const (
	gotoLockTTL  = 10 * time.Second
	gotoLockWait = 3 * time.Second
	moveLockTTL  = 15 * time.Second
	readLockTTL  = 10 * time.Second
	readLockWait = 2 * time.Second
)

// LinkRepo 短链接存储能力
type LinkRepo interface {
	CreateLinkWithGoto(ctx context.Context, link *model.ShortLink, gt *model.LinkGoto) error
	FindLiveByURL(ctx context.Context, fullShortURL, gid string) (*model.ShortLink, error)
	FindAnyLiveByURL(ctx context.Context, fullShortURL string) (*model.ShortLink, error)
	FindGotoByURL(ctx context.Context, fullShortURL string) (*model.LinkGoto, error)
	UpdateInGroup(ctx context.Context, fullShortURL, gid string, upd repository.LinkUpdate) error
	MoveGroup(ctx context.Context, old *model.ShortLink, newGid string, upd repository.LinkUpdate) error
	CountByGroups(ctx context.Context, gids []string) ([]repository.GroupCount, error)
	PageByGroup(ctx context.Context, gid string, current, size int) ([]model.ShortLink, int64, error)
}

// Filter 布隆过滤器能力
type Filter interface {
	Contains(ctx context.Context, value string) (bool, error)
	Add(ctx context.Context, value string) error
}

// Cache 跳转缓存能力
type Cache interface {
	GetTarget(ctx context.Context, fullShortURL string) (string, bool, error)
	SetTarget(ctx context.Context, fullShortURL, originURL string, validDate *time.Time) error
	DelTarget(ctx context.Context, fullShortURL string) error
	HasTombstone(ctx context.Context, fullShortURL string) (bool, error)
	SetTombstone(ctx context.Context, fullShortURL string) error
	DelTombstone(ctx context.Context, fullShortURL string) error
	AddUv(ctx context.Context, fullShortURL, visitor string) (bool, error)
	AddUip(ctx context.Context, fullShortURL, ip string) (bool, error)
}

// Unlocker 已获取锁的释放句柄
type Unlocker interface {
	Unlock(ctx context.Context) error
}

// Locker 命名锁服务能力
type Locker interface {
	// Acquire 短等待互斥加锁，用于跳转回源防击穿
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Unlocker, bool, error)
	// RLock 读写锁读侧
	RLock(ctx context.Context, key string, ttl, wait time.Duration) (Unlocker, bool, error)
	// TryLockWrite 读写锁写侧，非阻塞
	TryLockWrite(ctx context.Context, key string, ttl time.Duration) (Unlocker, bool, error)
}

// Allocator 短码分配能力
type Allocator interface {
	Allocate(ctx context.Context, originURL, domain string) (string, error)
}

// Producer 访问事件投递能力
type Producer interface {
	RecordVisit(rec stats.Record)
}

// LinkService 短链接核心服务：创建、修改、跳转
// 过滤器、缓存、锁都是进程级共享状态，以能力接口注入而非全局查找
type LinkService struct {
	repo      LinkRepo
	filter    Filter
	cache     Cache
	locks     Locker
	alloc     Allocator
	producer  Producer
	domain    string
	whiteList config.WhiteList
	logger    *zap.SugaredLogger
}

func NewLinkService(
	repo LinkRepo,
	filter Filter,
	c Cache,
	locks Locker,
	alloc Allocator,
	producer Producer,
	cfg *config.Config,
	logger *zap.SugaredLogger,
) *LinkService {
	return &LinkService{
		repo:      repo,
		filter:    filter,
		cache:     c,
		locks:     locks,
		alloc:     alloc,
		producer:  producer,
		domain:    cfg.ShortLink.DefaultDomain,
		whiteList: cfg.WhiteList,
		logger:    logger.Named("link_service"),
	}
}

// CreateReq 创建短链接请求
type CreateReq struct {
	OriginURL     string     `json:"origin_url" binding:"required"`
	Gid           string     `json:"gid" binding:"required"`
	CreatedType   int        `json:"created_type"`
	ValidDateType int        `json:"valid_date_type"`
	ValidDate     *time.Time `json:"valid_date"`
	Describe      string     `json:"describe"`
	Favicon       string     `json:"favicon"`
}

// CreateResp 创建短链接响应
type CreateResp struct {
	FullShortURL string `json:"full_short_url"`
	OriginURL    string `json:"origin_url"`
	Gid          string `json:"gid"`
}

// Create 创建短链接：分配短码、落库、缓存预热、标记布隆过滤器
func (s *LinkService) Create(ctx context.Context, req *CreateReq) (*CreateResp, error) {
	if err := s.verifyWhitelist(req.OriginURL); err != nil {
		return nil, err
	}

	suffix, err := s.alloc.Allocate(ctx, req.OriginURL, s.domain)
	if err != nil {
		return nil, err
	}
	fullShortURL := s.domain + "/" + suffix

	validDate := req.ValidDate
	if req.ValidDateType == model.ValidTypePermanent {
		validDate = nil
	}
	link := &model.ShortLink{
		Domain:        s.domain,
		ShortUri:      suffix,
		FullShortURL:  fullShortURL,
		OriginURL:     req.OriginURL,
		Gid:           req.Gid,
		Favicon:       req.Favicon,
		CreatedType:   req.CreatedType,
		ValidDateType: req.ValidDateType,
		ValidDate:     validDate,
		Describe:      req.Describe,
	}
	gt := &model.LinkGoto{FullShortURL: fullShortURL, Gid: req.Gid}

	if err := s.repo.CreateLinkWithGoto(ctx, link, gt); err != nil {
		if repository.IsDuplicateErr(err) {
			return nil, s.onDuplicateCreate(ctx, fullShortURL)
		}
		return nil, err
	}

	// 缓存预热，避免新链接首访必然 miss
	if err := s.cache.SetTarget(ctx, fullShortURL, req.OriginURL, validDate); err != nil {
		s.logger.Warnf("创建后缓存预热失败, full_short_url=%s, err=%v", fullShortURL, err)
	}
	if err := s.filter.Add(ctx, fullShortURL); err != nil {
		s.logger.Errorf("布隆过滤器标记失败, full_short_url=%s, err=%v", fullShortURL, err)
	}

	return &CreateResp{
		FullShortURL: "http://" + fullShortURL,
		OriginURL:    req.OriginURL,
		Gid:          req.Gid,
	}, nil
}

// onDuplicateCreate 唯一键冲突的甄别：查到存活记录说明是并发竞争输掉了，
// 顺手补标过滤器保持一致；查不到说明库内状态异常
func (s *LinkService) onDuplicateCreate(ctx context.Context, fullShortURL string) error {
	existing, err := s.repo.FindAnyLiveByURL(ctx, fullShortURL)
	if err != nil {
		return err
	}
	if existing != nil {
		s.logger.Warnf("短链接 %s 重复入库", fullShortURL)
		if err := s.filter.Add(ctx, fullShortURL); err != nil {
			s.logger.Errorf("布隆过滤器补标失败, full_short_url=%s, err=%v", fullShortURL, err)
		}
	} else {
		s.logger.Errorf("短链接 %s 撞唯一键但查无存活记录", fullShortURL)
	}
	return errs.ErrGenerationConflict
}

// BatchCreateReq 批量创建请求，origin_urls 与 describes 一一对应
type BatchCreateReq struct {
	OriginURLs    []string   `json:"origin_urls" binding:"required"`
	Describes     []string   `json:"describes"`
	Gid           string     `json:"gid" binding:"required"`
	CreatedType   int        `json:"created_type"`
	ValidDateType int        `json:"valid_date_type"`
	ValidDate     *time.Time `json:"valid_date"`
}

// BaseLinkInfo 批量创建成功条目
type BaseLinkInfo struct {
	FullShortURL string `json:"full_short_url"`
	OriginURL    string `json:"origin_url"`
	Describe     string `json:"describe"`
}

// BatchCreateResp 批量创建响应
type BatchCreateResp struct {
	Total         int            `json:"total"`
	BaseLinkInfos []BaseLinkInfo `json:"base_link_infos"`
}

// BatchCreate 逐条创建，单条失败只记日志不拖垮整批
func (s *LinkService) BatchCreate(ctx context.Context, req *BatchCreateReq) *BatchCreateResp {
	result := make([]BaseLinkInfo, 0, len(req.OriginURLs))
	for i, originURL := range req.OriginURLs {
		describe := ""
		if i < len(req.Describes) {
			describe = req.Describes[i]
		}
		resp, err := s.Create(ctx, &CreateReq{
			OriginURL:     originURL,
			Gid:           req.Gid,
			CreatedType:   req.CreatedType,
			ValidDateType: req.ValidDateType,
			ValidDate:     req.ValidDate,
			Describe:      describe,
		})
		if err != nil {
			s.logger.Errorf("批量创建短链接失败, origin_url=%s, err=%v", originURL, err)
			continue
		}
		result = append(result, BaseLinkInfo{
			FullShortURL: resp.FullShortURL,
			OriginURL:    resp.OriginURL,
			Describe:     describe,
		})
	}
	return &BatchCreateResp{Total: len(result), BaseLinkInfos: result}
}

// UpdateReq 修改短链接请求，origin_gid 是修改前所在分组
type UpdateReq struct {
	FullShortURL  string     `json:"full_short_url" binding:"required"`
	OriginGid     string     `json:"origin_gid" binding:"required"`
	Gid           string     `json:"gid" binding:"required"`
	OriginURL     string     `json:"origin_url" binding:"required"`
	Describe      string     `json:"describe"`
	ValidDateType int        `json:"valid_date_type"`
	ValidDate     *time.Time `json:"valid_date"`
	Favicon       string     `json:"favicon"`
}

// Update 修改短链接；分组变化时走迁移协议，同组修改只做条件更新
func (s *LinkService) Update(ctx context.Context, req *UpdateReq) error {
	if err := s.verifyWhitelist(req.OriginURL); err != nil {
		return err
	}

	existing, err := s.repo.FindLiveByURL(ctx, req.FullShortURL, req.OriginGid)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.ErrLinkNotFound
	}

	upd := repository.LinkUpdate{
		OriginURL:     req.OriginURL,
		Describe:      req.Describe,
		ValidDateType: req.ValidDateType,
		ValidDate:     req.ValidDate,
		Favicon:       req.Favicon,
	}

	if req.Gid == existing.Gid {
		if err := s.repo.UpdateInGroup(ctx, req.FullShortURL, req.Gid, upd); err != nil {
			return err
		}
	} else {
		// 迁移与跳转回源互斥：写锁抢不到就快速失败，不在内部排队
		wl, ok, err := s.locks.TryLockWrite(ctx, groupMoveLockKey(req.FullShortURL), moveLockTTL)
		if err != nil {
			return errs.ErrDependencyUnavailable
		}
		if !ok {
			return errs.ErrResourceBusy
		}
		defer wl.Unlock(ctx)

		if err := s.repo.MoveGroup(ctx, existing, req.Gid, upd); err != nil {
			return err
		}
	}

	s.invalidateAfterUpdate(ctx, existing, req)
	return nil
}

// invalidateAfterUpdate 有效期语义变化时删正向缓存；
// 过期链接被续期复活时还要清墓碑，否则负缓存会继续挡住有效链接
func (s *LinkService) invalidateAfterUpdate(ctx context.Context, old *model.ShortLink, req *UpdateReq) {
	sameType := old.ValidDateType == req.ValidDateType
	sameDate := equalTime(old.ValidDate, req.ValidDate)
	if sameType && sameDate {
		return
	}

	if err := s.cache.DelTarget(ctx, req.FullShortURL); err != nil {
		s.logger.Warnf("缓存失效失败, full_short_url=%s, err=%v", req.FullShortURL, err)
	}

	now := time.Now()
	wasExpired := old.ValidDate != nil && old.ValidDate.Before(now)
	nowValid := req.ValidDateType == model.ValidTypePermanent ||
		(req.ValidDate != nil && req.ValidDate.After(now))
	if wasExpired && nowValid {
		if err := s.cache.DelTombstone(ctx, req.FullShortURL); err != nil {
			s.logger.Warnf("清除空值墓碑失败, full_short_url=%s, err=%v", req.FullShortURL, err)
		}
	}
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// GroupCounts 查询分组内短链接数量
func (s *LinkService) GroupCounts(ctx context.Context, gids []string) ([]repository.GroupCount, error) {
	return s.repo.CountByGroups(ctx, gids)
}

// Page 分组内分页
func (s *LinkService) Page(ctx context.Context, gid string, current, size int) ([]model.ShortLink, int64, error) {
	return s.repo.PageByGroup(ctx, gid, current, size)
}
