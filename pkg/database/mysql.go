package database

import (
	"fmt"
	"shortlink-platform/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// InitMySQL 建立数据库连接并迁移短链接及监控相关表
func InitMySQL(host string, port int, user, password, dbName string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbName)

	// TranslateError 让驱动的唯一键冲突统一翻译成 gorm.ErrDuplicatedKey
	connection, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %v", err)
	}

	if err := AutoMigrate(connection); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %v", err)
	}

	return connection, nil
}

// AutoMigrate 迁移所有业务表，测试里也用它初始化内存库
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.ShortLink{},
		&model.LinkGoto{},
		&model.LinkAccessStats{},
		&model.LinkLocaleStats{},
		&model.LinkOsStats{},
		&model.LinkBrowserStats{},
		&model.LinkDeviceStats{},
		&model.LinkNetworkStats{},
		&model.LinkAccessLog{},
		&model.LinkStatsToday{},
	)
}
