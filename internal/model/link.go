package model

import (
	"time"
)

// 有效期类型
const (
	ValidTypePermanent = 0 // 永久有效
	ValidTypeCustom    = 1 // 自定义有效期
)

// 创建类型
const (
	CreatedByConsole = 0 // 控制台创建
	CreatedByAPI     = 1 // 接口创建
)

// ShortLink 短链接模型
// 同一 full_short_url 只允许存在一条存活记录（del_time=0），
// 历史软删记录以 del_time 区分，保留用于统计归属
type ShortLink struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	Domain        string     `gorm:"size:128;not null" json:"domain"`
	ShortUri      string     `gorm:"size:16;not null;index" json:"short_uri"`
	FullShortURL  string     `gorm:"size:160;not null;uniqueIndex:idx_full_short_url_del_time,priority:1" json:"full_short_url"`
	OriginURL     string     `gorm:"type:text;not null" json:"origin_url"`
	Gid           string     `gorm:"size:32;not null;index" json:"gid"`
	Favicon       string     `gorm:"size:256" json:"favicon"`
	CreatedType   int        `gorm:"default:0" json:"created_type"`
	ValidDateType int        `gorm:"default:0" json:"valid_date_type"`
	ValidDate     *time.Time `json:"valid_date"`
	Describe      string     `gorm:"size:1024" json:"describe"`
	EnableStatus  int        `gorm:"default:0" json:"enable_status"` // 0 启用 1 停用
	TotalPv       int64      `gorm:"default:0" json:"total_pv"`
	TotalUv       int64      `gorm:"default:0" json:"total_uv"`
	TotalUip      int64      `gorm:"default:0" json:"total_uip"`
	DelFlag       int        `gorm:"default:0" json:"del_flag"`
	DelTime       int64      `gorm:"default:0;uniqueIndex:idx_full_short_url_del_time,priority:2" json:"del_time"` // 软删时间戳(毫秒)，存活为 0
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (ShortLink) TableName() string {
	return "short_links"
}

// Expired 判断链接是否已过有效期
func (l *ShortLink) Expired(now time.Time) bool {
	return l.ValidDate != nil && l.ValidDate.Before(now)
}

// LinkGoto 路由表：full_short_url -> gid
// 跳转时先查它定位分组，避免按 URL 扫描主表
type LinkGoto struct {
	ID           uint   `gorm:"primarykey" json:"id"`
	FullShortURL string `gorm:"size:160;not null;uniqueIndex" json:"full_short_url"`
	Gid          string `gorm:"size:32;not null" json:"gid"`
}

func (LinkGoto) TableName() string {
	return "short_link_gotos"
}
