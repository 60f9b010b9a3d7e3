package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"shortlink-platform/internal/model"
)

// LinkRepository 短链接仓储，只暴露业务用到的查询形态
type LinkRepository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// LinkUpdate 修改短链接时允许变更的字段
type LinkUpdate struct {
	OriginURL     string
	Describe      string
	ValidDateType int
	ValidDate     *time.Time
	Favicon       string
}

// GroupCount 分组内短链接数量
type GroupCount struct {
	Gid            string `json:"gid"`
	ShortLinkCount int64  `json:"short_link_count"`
}

// CreateLinkWithGoto 链接主表与路由表作为一个逻辑单元写入
func (r *LinkRepository) CreateLinkWithGoto(ctx context.Context, link *model.ShortLink, gt *model.LinkGoto) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(link).Error; err != nil {
			return err
		}
		return tx.Create(gt).Error
	})
}

// IsDuplicateErr 判断存储层唯一键冲突
func IsDuplicateErr(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// FindLiveByURL 按 (url, gid) 查存活且启用的链接，查不到返回 nil
func (r *LinkRepository) FindLiveByURL(ctx context.Context, fullShortURL, gid string) (*model.ShortLink, error) {
	var link model.ShortLink
	err := r.db.WithContext(ctx).
		Where("full_short_url = ? AND gid = ? AND del_flag = 0 AND enable_status = 0", fullShortURL, gid).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// FindAnyLiveByURL 只按 URL 查存活记录，创建撞库时用来甄别良性竞争
func (r *LinkRepository) FindAnyLiveByURL(ctx context.Context, fullShortURL string) (*model.ShortLink, error) {
	var link model.ShortLink
	err := r.db.WithContext(ctx).
		Where("full_short_url = ? AND del_flag = 0 AND del_time = 0", fullShortURL).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// FindGotoByURL 查路由表定位分组
func (r *LinkRepository) FindGotoByURL(ctx context.Context, fullShortURL string) (*model.LinkGoto, error) {
	var gt model.LinkGoto
	err := r.db.WithContext(ctx).Where("full_short_url = ?", fullShortURL).First(&gt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gt, nil
}

// UpdateInGroup 组内修改，条件更新即可，不需要锁
func (r *LinkRepository) UpdateInGroup(ctx context.Context, fullShortURL, gid string, upd LinkUpdate) error {
	values := map[string]interface{}{
		"origin_url":      upd.OriginURL,
		"describe":        upd.Describe,
		"valid_date_type": upd.ValidDateType,
		"valid_date":      upd.ValidDate,
	}
	if upd.ValidDateType == model.ValidTypePermanent {
		values["valid_date"] = nil
	}
	if upd.Favicon != "" {
		values["favicon"] = upd.Favicon
	}
	return r.db.WithContext(ctx).Model(&model.ShortLink{}).
		Where("full_short_url = ? AND gid = ? AND del_flag = 0 AND enable_status = 0", fullShortURL, gid).
		Updates(values).Error
}

// statsTables 分组迁移时需要整体改写 gid 的监控表
var statsTables = []string{
	model.LinkAccessStats{}.TableName(),
	model.LinkLocaleStats{}.TableName(),
	model.LinkOsStats{}.TableName(),
	model.LinkBrowserStats{}.TableName(),
	model.LinkDeviceStats{}.TableName(),
	model.LinkNetworkStats{}.TableName(),
	model.LinkAccessLog{}.TableName(),
}

// MoveGroup 跨分组迁移：软删旧记录、带账目新建、改写路由与全部监控表
// 整个协议在一个事务里完成，任一步失败全部回滚
func (r *LinkRepository) MoveGroup(ctx context.Context, old *model.ShortLink, newGid string, upd LinkUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 软删旧链接，del_time 写当前毫秒时间戳，给同 URL 的新记录腾出唯一键
		err := tx.Model(&model.ShortLink{}).
			Where("full_short_url = ? AND gid = ? AND del_flag = 0 AND del_time = 0 AND enable_status = 0",
				old.FullShortURL, old.Gid).
			Updates(map[string]interface{}{
				"del_flag": 1,
				"del_time": time.Now().UnixMilli(),
			}).Error
		if err != nil {
			return err
		}

		validDate := upd.ValidDate
		if upd.ValidDateType == model.ValidTypePermanent {
			validDate = nil
		}
		// 新记录沿用不可变字段，累计访问量随链接一起迁走
		fresh := &model.ShortLink{
			Domain:        old.Domain,
			ShortUri:      old.ShortUri,
			FullShortURL:  old.FullShortURL,
			OriginURL:     upd.OriginURL,
			Gid:           newGid,
			Favicon:       old.Favicon,
			CreatedType:   old.CreatedType,
			ValidDateType: upd.ValidDateType,
			ValidDate:     validDate,
			Describe:      upd.Describe,
			EnableStatus:  old.EnableStatus,
			TotalPv:       old.TotalPv,
			TotalUv:       old.TotalUv,
			TotalUip:      old.TotalUip,
		}
		if err := tx.Create(fresh).Error; err != nil {
			return err
		}

		// 路由表改指向新分组
		err = tx.Model(&model.LinkGoto{}).
			Where("full_short_url = ? AND gid = ?", old.FullShortURL, old.Gid).
			Update("gid", newGid).Error
		if err != nil {
			return err
		}

		// 监控表逐张改写 gid，漏掉任何一张都会让旧分组留下孤儿行
		for _, table := range statsTables {
			err = tx.Table(table).
				Where("full_short_url = ? AND gid = ? AND del_flag = 0", old.FullShortURL, old.Gid).
				Update("gid", newGid).Error
			if err != nil {
				return err
			}
		}
		return tx.Model(&model.LinkStatsToday{}).
			Where("full_short_url = ? AND gid = ? AND del_flag = 0", old.FullShortURL, old.Gid).
			Update("gid", newGid).Error
	})
}

// CountByGroups 查询若干分组内启用链接数量
func (r *LinkRepository) CountByGroups(ctx context.Context, gids []string) ([]GroupCount, error) {
	var result []GroupCount
	err := r.db.WithContext(ctx).Model(&model.ShortLink{}).
		Select("gid, count(*) as short_link_count").
		Where("gid IN ? AND enable_status = 0 AND del_flag = 0", gids).
		Group("gid").
		Scan(&result).Error
	return result, err
}

// PageByGroup 分组内分页查询
func (r *LinkRepository) PageByGroup(ctx context.Context, gid string, current, size int) ([]model.ShortLink, int64, error) {
	if current < 1 {
		current = 1
	}
	if size < 1 {
		size = 10
	}
	query := r.db.WithContext(ctx).Model(&model.ShortLink{}).
		Where("gid = ? AND del_flag = 0 AND enable_status = 0", gid)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var links []model.ShortLink
	err := query.Order("created_at DESC").
		Offset((current - 1) * size).
		Limit(size).
		Find(&links).Error
	return links, total, err
}

// AllLiveURLs 全量存活短链接，布隆过滤器重建时回放
func (r *LinkRepository) AllLiveURLs(ctx context.Context) ([]string, error) {
	var urls []string
	err := r.db.WithContext(ctx).Model(&model.ShortLink{}).
		Where("del_flag = 0").
		Pluck("full_short_url", &urls).Error
	return urls, err
}
