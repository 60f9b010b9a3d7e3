package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// 主配置结构
type Config struct {
	App       App       `yaml:"app"`
	Server    Server    `yaml:"server"`
	Database  DB        `yaml:"database"`
	Cache     Cache     `yaml:"cache"`
	Auth      Auth      `yaml:"auth"`
	RateLimit Limit     `yaml:"rate_limit"`
	ShortLink ShortLink `yaml:"short_link"`
	WhiteList WhiteList `yaml:"goto_domain_white_list"`
}

// 应用配置
type App struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// 服务器配置
type Server struct {
	Port         int `yaml:"port"`
	ReadTimeout  int `yaml:"read_timeout"`
	WriteTimeout int `yaml:"write_timeout"`
}

// 数据库配置
type DB struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
}

// 缓存配置（Redis）
type Cache struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// 认证配置：密钥与独立认证服务共享，本服务只校验令牌
type Auth struct {
	Secret          string `yaml:"secret"`
	Issuer          string `yaml:"issuer"`
	ExpirationHours int    `yaml:"expiration_hours"`
}

// 限流配置
type Limit struct {
	Enabled   bool     `yaml:"enabled"`
	Requests  int64    `yaml:"requests_per_minute"`
	Burst     int64    `yaml:"burst"`
	SkipPaths []string `yaml:"skip_paths"`
}

// 短链接业务配置
type ShortLink struct {
	// DefaultDomain 创建短链接使用的默认域名
	DefaultDomain string `yaml:"default_domain"`
	// NotFoundPath 跳转未命中时重定向的页面
	NotFoundPath string `yaml:"notfound_path"`
	// BloomExpectedInsertions 布隆过滤器预估容量
	BloomExpectedInsertions uint64 `yaml:"bloom_expected_insertions"`
	// BloomFpp 布隆过滤器允许的误判率
	BloomFpp float64 `yaml:"bloom_fpp"`
	// StatsQueueSize 访问统计队列长度，满载时丢弃事件
	StatsQueueSize int `yaml:"stats_queue_size"`
}

// 跳转域名白名单配置
type WhiteList struct {
	Enabled bool     `yaml:"enabled"`
	Names   string   `yaml:"names"`
	Details []string `yaml:"details"`
}

// 加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
