package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"shortlink-platform/internal/model"
)

// VisitStats 一次访问在监控侧需要落的全部维度
type VisitStats struct {
	FullShortURL string
	Gid          string
	Time         time.Time
	UvFirst      bool
	UipFirst     bool
	Visitor      string
	IP           string
	Os           string
	Browser      string
	Device       string
	Network      string
	Country      string
	Province     string
	City         string
	Adcode       string
}

func boolToCnt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// SaveVisitStats 把一次访问聚合进全部监控表并累加链接总量
// 单事务落库；消息可能重复投递，计数按至少一次语义接受少量重复
func (r *LinkRepository) SaveVisitStats(ctx context.Context, v *VisitStats) error {
	date := time.Date(v.Time.Year(), v.Time.Month(), v.Time.Day(), 0, 0, 0, 0, v.Time.Location())
	uv := boolToCnt(v.UvFirst)
	uip := boolToCnt(v.UipFirst)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 基础访问监控，按小时、星期细分
		var access model.LinkAccessStats
		err := tx.Where("full_short_url = ? AND gid = ? AND date = ? AND hour = ?",
			v.FullShortURL, v.Gid, date, v.Time.Hour()).First(&access).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			access = model.LinkAccessStats{
				FullShortURL: v.FullShortURL, Gid: v.Gid, Date: date,
				Hour: v.Time.Hour(), Weekday: int(v.Time.Weekday()),
				Pv: 1, Uv: uv, Uip: uip,
			}
			if err := tx.Create(&access).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			err = tx.Model(&access).Updates(map[string]interface{}{
				"pv":  gorm.Expr("pv + 1"),
				"uv":  gorm.Expr("uv + ?", uv),
				"uip": gorm.Expr("uip + ?", uip),
			}).Error
			if err != nil {
				return err
			}
		}

		// 地区监控
		var locale model.LinkLocaleStats
		err = tx.Where("full_short_url = ? AND gid = ? AND date = ? AND province = ? AND city = ?",
			v.FullShortURL, v.Gid, date, v.Province, v.City).First(&locale).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			locale = model.LinkLocaleStats{
				FullShortURL: v.FullShortURL, Gid: v.Gid, Date: date,
				Country: v.Country, Province: v.Province, City: v.City, Adcode: v.Adcode, Cnt: 1,
			}
			if err := tx.Create(&locale).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&locale).Update("cnt", gorm.Expr("cnt + 1")).Error; err != nil {
				return err
			}
		}

		if err := incrDimension(tx, &model.LinkOsStats{}, "os", v.Os, v, date); err != nil {
			return err
		}
		if err := incrDimension(tx, &model.LinkBrowserStats{}, "browser", v.Browser, v, date); err != nil {
			return err
		}
		if err := incrDimension(tx, &model.LinkDeviceStats{}, "device", v.Device, v, date); err != nil {
			return err
		}
		if err := incrDimension(tx, &model.LinkNetworkStats{}, "network", v.Network, v, date); err != nil {
			return err
		}

		// 访问明细日志
		logRow := model.LinkAccessLog{
			FullShortURL: v.FullShortURL, Gid: v.Gid,
			User: v.Visitor, IP: v.IP,
			Os: v.Os, Browser: v.Browser, Device: v.Device, Network: v.Network,
			Locale: v.Country + "-" + v.Province + "-" + v.City,
		}
		if err := tx.Create(&logRow).Error; err != nil {
			return err
		}

		// 链接累计访问量
		err = tx.Model(&model.ShortLink{}).
			Where("full_short_url = ? AND gid = ? AND del_flag = 0", v.FullShortURL, v.Gid).
			Updates(map[string]interface{}{
				"total_pv":  gorm.Expr("total_pv + 1"),
				"total_uv":  gorm.Expr("total_uv + ?", uv),
				"total_uip": gorm.Expr("total_uip + ?", uip),
			}).Error
		if err != nil {
			return err
		}

		// 当日汇总
		var today model.LinkStatsToday
		err = tx.Where("full_short_url = ? AND gid = ? AND date = ?",
			v.FullShortURL, v.Gid, date).First(&today).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			today = model.LinkStatsToday{
				FullShortURL: v.FullShortURL, Gid: v.Gid, Date: date,
				TodayPv: 1, TodayUv: uv, TodayUip: uip,
			}
			return tx.Create(&today).Error
		case err != nil:
			return err
		default:
			return tx.Model(&today).Updates(map[string]interface{}{
				"today_pv":  gorm.Expr("today_pv + 1"),
				"today_uv":  gorm.Expr("today_uv + ?", uv),
				"today_uip": gorm.Expr("today_uip + ?", uip),
			}).Error
		}
	})
}

// incrDimension 单维度计数表的累加，os/browser/device/network 结构一致
func incrDimension(tx *gorm.DB, mdl interface{}, column, value string, v *VisitStats, date time.Time) error {
	cond := "full_short_url = ? AND gid = ? AND date = ? AND " + column + " = ?"

	var count int64
	err := tx.Model(mdl).Where(cond, v.FullShortURL, v.Gid, date, value).Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		values := map[string]interface{}{
			"full_short_url": v.FullShortURL,
			"gid":            v.Gid,
			"date":           date,
			column:           value,
			"cnt":            1,
			"created_at":     time.Now(),
			"updated_at":     time.Now(),
		}
		return tx.Model(mdl).Create(values).Error
	}
	return tx.Model(mdl).Where(cond, v.FullShortURL, v.Gid, date, value).
		Updates(map[string]interface{}{
			"cnt":        gorm.Expr("cnt + 1"),
			"updated_at": time.Now(),
		}).Error
}
