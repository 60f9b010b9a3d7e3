package shortcode

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shortlink-platform/internal/errs"
)

const (
	// Charset 短码字符集
	Charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// SuffixLength 短码长度
	SuffixLength = 6
	// maxGenerateAttempts 冲突重试上限，超出后向调用方返回背压错误
	maxGenerateAttempts = 10
)

// Filter 布隆过滤器能力，只需要成员判断
type Filter interface {
	Contains(ctx context.Context, value string) (bool, error)
}

// Allocator 为新链接分配短码后缀
// 生成前先问布隆过滤器，误判率换来的是省掉每次尝试的数据库往返
type Allocator struct {
	filter Filter
	logger *zap.SugaredLogger
}

func NewAllocator(filter Filter, logger *zap.SugaredLogger) *Allocator {
	return &Allocator{
		filter: filter,
		logger: logger.Named("suffix_allocator"),
	}
}

// Allocate 对原始链接加盐哈希生成定长 base62 短码
// 过滤器判定 "可能存在" 时换盐重试
func (a *Allocator) Allocate(ctx context.Context, originURL, domain string) (string, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		salted := originURL + uuid.NewString()
		suffix := hashToBase62(salted)
		exists, err := a.filter.Contains(ctx, domain+"/"+suffix)
		if err != nil {
			return "", fmt.Errorf("短码查重失败: %w", err)
		}
		if !exists {
			return suffix, nil
		}
	}
	a.logger.Warnf("短码生成重试 %d 次仍有冲突, origin_url=%s", maxGenerateAttempts, originURL)
	return "", errs.ErrAllocationExhausted
}

// hashToBase62 取 sha256 摘要前 8 字节，编码为定长 base62
func hashToBase62(s string) string {
	sum := sha256.Sum256([]byte(s))
	v := binary.BigEndian.Uint64(sum[:8])

	b := make([]byte, SuffixLength)
	for i := SuffixLength - 1; i >= 0; i-- {
		b[i] = Charset[v%uint64(len(Charset))]
		v /= uint64(len(Charset))
	}
	return string(b)
}
