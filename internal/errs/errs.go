package errs

import "errors"

// 服务侧错误：调用方应稍后重试
var (
	// ErrAllocationExhausted 短链接后缀重试超限，属于主动背压信号
	ErrAllocationExhausted = errors.New("短链接频繁生成，请稍后再试")
	// ErrGenerationConflict 并发写入撞库且查不到已有存活记录
	ErrGenerationConflict = errors.New("短链接生成重复")
	// ErrResourceBusy 分组迁移抢写锁失败，不在内部排队等待
	ErrResourceBusy = errors.New("短链接正在被访问，请稍后再试...")
	// ErrDependencyUnavailable 缓存、锁或队列不可达
	ErrDependencyUnavailable = errors.New("依赖服务暂不可用")
)

// 客户端侧错误
var (
	// ErrLinkNotFound 跳转未命中，对外表现为 notfound 页而非 5xx
	ErrLinkNotFound = errors.New("短链接记录不存在")
	// ErrWhitelistDenied 跳转域名不在白名单内
	ErrWhitelistDenied = errors.New("跳转链接填写错误")
)
