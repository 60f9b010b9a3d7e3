package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shortlink-platform/internal/config"
	"shortlink-platform/internal/errs"
	"shortlink-platform/internal/model"
)

func TestCreate(t *testing.T) {
	svc, deps := newTestService("abc123")
	ctx := context.Background()

	resp, err := svc.Create(ctx, &CreateReq{
		OriginURL: "https://example.com/page",
		Gid:       "group-a",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://sho.rt/abc123", resp.FullShortURL)

	// 创建后布隆过滤器必须已包含该链接
	contains, err := deps.filter.Contains(ctx, "sho.rt/abc123")
	require.NoError(t, err)
	assert.True(t, contains)

	// 缓存预热
	target, hit, _ := deps.cache.GetTarget(ctx, "sho.rt/abc123")
	assert.True(t, hit)
	assert.Equal(t, "https://example.com/page", target)

	// 路由表已写入
	gt, err := deps.repo.FindGotoByURL(ctx, "sho.rt/abc123")
	require.NoError(t, err)
	require.NotNil(t, gt)
	assert.Equal(t, "group-a", gt.Gid)
}

func TestCreateMalformedURL(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), &CreateReq{
		OriginURL: "not-a-url",
		Gid:       "group-a",
	})
	assert.ErrorIs(t, err, errs.ErrWhitelistDenied)
}

func TestCreateWhitelistDenied(t *testing.T) {
	deps := &testDeps{
		repo: newFakeRepo(), filter: newFakeFilter(), cache: newFakeCache(),
		locks: newFakeLocks(), alloc: &fakeAlloc{suffixes: []string{"abc123"}},
		producer: &fakeProducer{},
	}
	cfg := &config.Config{
		ShortLink: config.ShortLink{DefaultDomain: "sho.rt"},
		WhiteList: config.WhiteList{
			Enabled: true,
			Names:   "例站",
			Details: []string{"allowed.example.com"},
		},
	}
	svc := NewLinkService(deps.repo, deps.filter, deps.cache, deps.locks,
		deps.alloc, deps.producer, cfg, zap.NewNop().Sugar())
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreateReq{OriginURL: "https://evil.example.org/x", Gid: "g"})
	assert.ErrorIs(t, err, errs.ErrWhitelistDenied)

	resp, err := svc.Create(ctx, &CreateReq{OriginURL: "https://allowed.example.com/x", Gid: "g"})
	require.NoError(t, err)
	assert.Equal(t, "http://sho.rt/abc123", resp.FullShortURL)
}

func TestConcurrentCreateSameSuffix(t *testing.T) {
	// 两个请求拿到同一个短码，唯一键只放行一个，输家拿到生成冲突
	svc, deps := newTestService("abc123", "abc123")
	ctx := context.Background()

	var wg sync.WaitGroup
	errsCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, &CreateReq{
				OriginURL: "https://example.com/page",
				Gid:       "group-a",
			})
			errsCh <- err
		}()
	}
	wg.Wait()
	close(errsCh)

	var okCount, conflictCount int
	for err := range errsCh {
		if err == nil {
			okCount++
			continue
		}
		require.ErrorIs(t, err, errs.ErrGenerationConflict)
		conflictCount++
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, conflictCount)

	// 输家也要保证过滤器状态一致
	contains, _ := deps.filter.Contains(ctx, "sho.rt/abc123")
	assert.True(t, contains)
}

func TestBatchCreatePartialFailure(t *testing.T) {
	svc, _ := newTestService("aaa111", "bbb222", "ccc333")

	resp := svc.BatchCreate(context.Background(), &BatchCreateReq{
		OriginURLs: []string{
			"https://example.com/1",
			"::::not a url",
			"https://example.com/3",
		},
		Describes: []string{"一", "二", "三"},
		Gid:       "group-a",
	})

	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.BaseLinkInfos, 2)
	assert.Equal(t, "https://example.com/1", resp.BaseLinkInfos[0].OriginURL)
	assert.Equal(t, "https://example.com/3", resp.BaseLinkInfos[1].OriginURL)
	assert.Equal(t, "三", resp.BaseLinkInfos[1].Describe)
}

func TestUpdateNotFound(t *testing.T) {
	svc, _ := newTestService()

	err := svc.Update(context.Background(), &UpdateReq{
		FullShortURL: "sho.rt/zzzzzz",
		OriginGid:    "group-a",
		Gid:          "group-a",
		OriginURL:    "https://example.com",
	})
	assert.ErrorIs(t, err, errs.ErrLinkNotFound)
}

func TestUpdateSameGroup(t *testing.T) {
	svc, deps := newTestService("abc123")
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreateReq{OriginURL: "https://example.com/old", Gid: "group-a"})
	require.NoError(t, err)

	err = svc.Update(ctx, &UpdateReq{
		FullShortURL: "sho.rt/abc123",
		OriginGid:    "group-a",
		Gid:          "group-a",
		OriginURL:    "https://example.com/new",
		Describe:     "改写目标",
	})
	require.NoError(t, err)

	link, err := deps.repo.FindLiveByURL(ctx, "sho.rt/abc123", "group-a")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", link.OriginURL)
}

func TestUpdateMoveGroup(t *testing.T) {
	svc, deps := newTestService("abc123")
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreateReq{OriginURL: "https://example.com", Gid: "group-a"})
	require.NoError(t, err)

	err = svc.Update(ctx, &UpdateReq{
		FullShortURL: "sho.rt/abc123",
		OriginGid:    "group-a",
		Gid:          "group-b",
		OriginURL:    "https://example.com",
	})
	require.NoError(t, err)

	old, _ := deps.repo.FindLiveByURL(ctx, "sho.rt/abc123", "group-a")
	assert.Nil(t, old)
	fresh, _ := deps.repo.FindLiveByURL(ctx, "sho.rt/abc123", "group-b")
	require.NotNil(t, fresh)

	gt, _ := deps.repo.FindGotoByURL(ctx, "sho.rt/abc123")
	assert.Equal(t, "group-b", gt.Gid)

	// 迁移完成后写锁必须已释放
	wl, ok, err := deps.locks.TryLockWrite(ctx, groupMoveLockKey("sho.rt/abc123"), moveLockTTL)
	require.NoError(t, err)
	require.True(t, ok)
	wl.Unlock(ctx)
}

func TestUpdateMoveGroupBusy(t *testing.T) {
	svc, deps := newTestService("abc123")
	ctx := context.Background()

	_, err := svc.Create(ctx, &CreateReq{OriginURL: "https://example.com", Gid: "group-a"})
	require.NoError(t, err)

	deps.locks.holdWrite(groupMoveLockKey("sho.rt/abc123"))

	err = svc.Update(ctx, &UpdateReq{
		FullShortURL: "sho.rt/abc123",
		OriginGid:    "group-a",
		Gid:          "group-b",
		OriginURL:    "https://example.com",
	})
	assert.ErrorIs(t, err, errs.ErrResourceBusy)

	// 迁移没有发生
	link, _ := deps.repo.FindLiveByURL(ctx, "sho.rt/abc123", "group-a")
	assert.NotNil(t, link)
}

func TestUpdateRevivalClearsTombstone(t *testing.T) {
	svc, deps := newTestService("abc123")
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := svc.Create(ctx, &CreateReq{
		OriginURL:     "https://example.com",
		Gid:           "group-a",
		ValidDateType: model.ValidTypeCustom,
		ValidDate:     &past,
	})
	require.NoError(t, err)

	// 过期链接被访问后留下了空值墓碑
	require.NoError(t, deps.cache.SetTombstone(ctx, "sho.rt/abc123"))

	// 续期复活：改成永久有效
	err = svc.Update(ctx, &UpdateReq{
		FullShortURL:  "sho.rt/abc123",
		OriginGid:     "group-a",
		Gid:           "group-a",
		OriginURL:     "https://example.com",
		ValidDateType: model.ValidTypePermanent,
	})
	require.NoError(t, err)

	tombstone, _ := deps.cache.HasTombstone(ctx, "sho.rt/abc123")
	assert.False(t, tombstone)

	// 有效期语义变化必须删掉正向缓存，下一次跳转重新回源
	_, hit, _ := deps.cache.GetTarget(ctx, "sho.rt/abc123")
	assert.False(t, hit)
}

func TestGroupCountsAndPage(t *testing.T) {
	svc, _ := newTestService("aaa111", "bbb222", "ccc333")
	ctx := context.Background()

	for _, u := range []string{"https://a.example.com", "https://b.example.com"} {
		_, err := svc.Create(ctx, &CreateReq{OriginURL: u, Gid: "group-a"})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, &CreateReq{OriginURL: "https://c.example.com", Gid: "group-b"})
	require.NoError(t, err)

	counts, err := svc.GroupCounts(ctx, []string{"group-a", "group-b"})
	require.NoError(t, err)
	got := map[string]int64{}
	for _, c := range counts {
		got[c.Gid] = c.ShortLinkCount
	}
	assert.Equal(t, int64(2), got["group-a"])
	assert.Equal(t, int64(1), got["group-b"])

	links, total, err := svc.Page(ctx, "group-a", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, links, 2)
}
