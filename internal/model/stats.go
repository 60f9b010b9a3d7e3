package model

import (
	"time"
)

// 监控表统一按 (full_short_url, gid, date) 维度记数
// 分组迁移时必须整体改写 gid，否则旧分组下的行会成为孤儿数据

// LinkAccessStats 基础访问监控：pv/uv/uip 按小时、星期细分
type LinkAccessStats struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	FullShortURL string    `gorm:"size:160;not null;index:idx_access_url_gid" json:"full_short_url"`
	Gid          string    `gorm:"size:32;not null;index:idx_access_url_gid" json:"gid"`
	Date         time.Time `gorm:"type:date;not null" json:"date"`
	Hour         int       `gorm:"not null" json:"hour"`
	Weekday      int       `gorm:"not null" json:"weekday"`
	Pv           int64     `gorm:"default:0" json:"pv"`
	Uv           int64     `gorm:"default:0" json:"uv"`
	Uip          int64     `gorm:"default:0" json:"uip"`
	DelFlag      int       `gorm:"default:0" json:"del_flag"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (LinkAccessStats) TableName() string { return "link_access_stats" }

// LinkLocaleStats 地区访问监控
type LinkLocaleStats struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	FullShortURL string    `gorm:"size:160;not null;index:idx_locale_url_gid" json:"full_short_url"`
	Gid          string    `gorm:"size:32;not null;index:idx_locale_url_gid" json:"gid"`
	Date         time.Time `gorm:"type:date;not null" json:"date"`
	Country      string    `gorm:"size:64" json:"country"`
	Province     string    `gorm:"size:64" json:"province"`
	City         string    `gorm:"size:64" json:"city"`
	Adcode       string    `gorm:"size:64" json:"adcode"`
	Cnt          int64     `gorm:"default:0" json:"cnt"`
	DelFlag      int       `gorm:"default:0" json:"del_flag"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (LinkLocaleStats) TableName() string { return "link_locale_stats" }

// LinkOsStats 操作系统监控
type LinkOsStats struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	FullShortURL string    `gorm:"size:160;not null;index:idx_os_url_gid" json:"full_short_url"`
	Gid          string    `gorm:"size:32;not null;index:idx_os_url_gid" json:"gid"`
	Date         time.Time `gorm:"type:date;not null" json:"date"`
	Os           string    `gorm:"size:64" json:"os"`
	Cnt          int64     `gorm:"default:0" json:"cnt"`
	DelFlag      int       `gorm:"default:0" json:"del_flag"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (LinkOsStats) TableName() string { return "link_os_stats" }

// LinkBrowserStats 浏览器监控
type LinkBrowserStats struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	FullShortURL string    `gorm:"size:160;not null;index:idx_browser_url_gid" json:"full_short_url"`
	Gid          string    `gorm:"size:32;not null;index:idx_browser_url_gid" json:"gid"`
	Date         time.Time `gorm:"type:date;not null" json:"date"`
	Browser      string    `gorm:"size:64" json:"browser"`
	Cnt          int64     `gorm:"default:0" json:"cnt"`
	DelFlag      int       `gorm:"default:0" json:"del_flag"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (LinkBrowserStats) TableName() string { return "link_browser_stats" }

// LinkDeviceStats 设备类型监控
type LinkDeviceStats struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	FullShortURL string    `gorm:"size:160;not null;index:idx_device_url_gid" json:"full_short_url"`
	Gid          string    `gorm:"size:32;not null;index:idx_device_url_gid" json:"gid"`
	Date         time.Time `gorm:"type:date;not null" json:"date"`
	Device       string    `gorm:"size:64" json:"device"`
	Cnt          int64     `gorm:"default:0" json:"cnt"`
	DelFlag      int       `gorm:"default:0" json:"del_flag"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (LinkDeviceStats) TableName() string { return "link_device_stats" }

// LinkNetworkStats 网络类型监控
type LinkNetworkStats struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	FullShortURL string    `gorm:"size:160;not null;index:idx_network_url_gid" json:"full_short_url"`
	Gid          string    `gorm:"size:32;not null;index:idx_network_url_gid" json:"gid"`
	Date         time.Time `gorm:"type:date;not null" json:"date"`
	Network      string    `gorm:"size:64" json:"network"`
	Cnt          int64     `gorm:"default:0" json:"cnt"`
	DelFlag      int       `gorm:"default:0" json:"del_flag"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (LinkNetworkStats) TableName() string { return "link_network_stats" }

// LinkAccessLog 访问明细日志，一次访问一行
type LinkAccessLog struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	FullShortURL string    `gorm:"size:160;not null;index:idx_log_url_gid" json:"full_short_url"`
	Gid          string    `gorm:"size:32;not null;index:idx_log_url_gid" json:"gid"`
	User         string    `gorm:"size:64" json:"user"` // uv 访客标识
	IP           string    `gorm:"size:45" json:"ip"`
	Os           string    `gorm:"size:64" json:"os"`
	Browser      string    `gorm:"size:64" json:"browser"`
	Device       string    `gorm:"size:64" json:"device"`
	Network      string    `gorm:"size:64" json:"network"`
	Locale       string    `gorm:"size:128" json:"locale"`
	DelFlag      int       `gorm:"default:0" json:"del_flag"`
	CreatedAt    time.Time `json:"created_at"`
}

func (LinkAccessLog) TableName() string { return "link_access_logs" }

// LinkStatsToday 当日汇总
type LinkStatsToday struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	FullShortURL string    `gorm:"size:160;not null;index:idx_today_url_gid" json:"full_short_url"`
	Gid          string    `gorm:"size:32;not null;index:idx_today_url_gid" json:"gid"`
	Date         time.Time `gorm:"type:date;not null" json:"date"`
	TodayPv      int64     `gorm:"default:0" json:"today_pv"`
	TodayUv      int64     `gorm:"default:0" json:"today_uv"`
	TodayUip     int64     `gorm:"default:0" json:"today_uip"`
	DelFlag      int       `gorm:"default:0" json:"del_flag"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (LinkStatsToday) TableName() string { return "link_stats_today" }
