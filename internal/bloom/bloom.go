package bloom

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Filter 基于 Redis 位图的布隆过滤器，记录所有已创建过的短链接
// 只增不删；位图丢失后必须用 Init 从数据库全量重放，否则会出现假阴性
type Filter struct {
	rdb    *redis.Client
	key    string
	bits   uint64
	hashes uint32
	logger *zap.SugaredLogger
}

// New 按预估容量和误判率计算位数与哈希个数
func New(rdb *redis.Client, key string, expectedInsertions uint64, fpp float64, logger *zap.SugaredLogger) *Filter {
	if expectedInsertions == 0 {
		expectedInsertions = 1
	}
	if fpp <= 0 || fpp >= 1 {
		fpp = 0.001
	}
	bits := optimalBits(expectedInsertions, fpp)
	return &Filter{
		rdb:    rdb,
		key:    key,
		bits:   bits,
		hashes: optimalHashes(bits, expectedInsertions),
		logger: logger.Named("bloom_filter"),
	}
}

// Init 首次启动或位图被清空后，从数据源重放全部存活短链接
// 重放完成前不应放行创建流量，否则已有后缀可能被当作可用
func (f *Filter) Init(ctx context.Context, load func(ctx context.Context) ([]string, error)) error {
	ready, err := f.rdb.Exists(ctx, f.readyKey()).Result()
	if err != nil {
		return err
	}
	if ready == 1 {
		return nil
	}

	urls, err := load(ctx)
	if err != nil {
		return fmt.Errorf("布隆过滤器重建失败: %w", err)
	}
	if err := f.AddBatch(ctx, urls); err != nil {
		return fmt.Errorf("布隆过滤器重建失败: %w", err)
	}
	if err := f.rdb.Set(ctx, f.readyKey(), "1", 0).Err(); err != nil {
		return err
	}
	f.logger.Infof("布隆过滤器重建完成，重放 %d 条短链接", len(urls))
	return nil
}

// Contains 回答 "一定不存在" 或 "可能存在"
func (f *Filter) Contains(ctx context.Context, value string) (bool, error) {
	pipe := f.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, 0, f.hashes)
	for _, pos := range f.bitPositions(value) {
		cmds = append(cmds, pipe.GetBit(ctx, f.key, int64(pos)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Add 标记一条短链接
func (f *Filter) Add(ctx context.Context, value string) error {
	pipe := f.rdb.Pipeline()
	for _, pos := range f.bitPositions(value) {
		pipe.SetBit(ctx, f.key, int64(pos), 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// AddBatch 批量标记，重建时使用
func (f *Filter) AddBatch(ctx context.Context, values []string) error {
	if len(values) == 0 {
		return nil
	}
	pipe := f.rdb.Pipeline()
	for _, v := range values {
		for _, pos := range f.bitPositions(v) {
			pipe.SetBit(ctx, f.key, int64(pos), 1)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (f *Filter) readyKey() string { return f.key + ":ready" }

// bitPositions 用双重哈希从一个 64 位 FNV 值派生出 k 个位偏移
func (f *Filter) bitPositions(value string) []uint64 {
	h := fnv.New64a()
	h.Write([]byte(value))
	sum := h.Sum64()
	h1 := sum & 0xffffffff
	h2 := sum >> 32

	positions := make([]uint64, f.hashes)
	for i := uint32(0); i < f.hashes; i++ {
		positions[i] = (h1 + uint64(i)*h2) % f.bits
	}
	return positions
}

func optimalBits(n uint64, p float64) uint64 {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	return uint64(math.Ceil(m))
}

func optimalHashes(bits, n uint64) uint32 {
	k := math.Round(float64(bits) / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	return uint32(k)
}
