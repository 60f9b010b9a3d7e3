package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"shortlink-platform/internal/config"
	"shortlink-platform/internal/model"
	"shortlink-platform/internal/repository"
	"shortlink-platform/internal/stats"
)

// 服务层测试全部走能力接口假实现，不依赖 Redis 和数据库

type fakeRepo struct {
	mu          sync.Mutex
	links       map[string]*model.ShortLink // full_short_url|gid
	gotos       map[string]*model.LinkGoto
	gotoLookups int32
	liveLookups int32
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		links: make(map[string]*model.ShortLink),
		gotos: make(map[string]*model.LinkGoto),
	}
}

func linkKey(fullShortURL, gid string) string { return fullShortURL + "|" + gid }

func (r *fakeRepo) CreateLinkWithGoto(_ context.Context, link *model.ShortLink, gt *model.LinkGoto) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.gotos[gt.FullShortURL]; exists {
		return gorm.ErrDuplicatedKey
	}
	cp := *link
	r.links[linkKey(link.FullShortURL, link.Gid)] = &cp
	gcp := *gt
	r.gotos[gt.FullShortURL] = &gcp
	return nil
}

func (r *fakeRepo) FindLiveByURL(_ context.Context, fullShortURL, gid string) (*model.ShortLink, error) {
	atomic.AddInt32(&r.liveLookups, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[linkKey(fullShortURL, gid)]
	if !ok || link.DelFlag != 0 || link.EnableStatus != 0 {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

func (r *fakeRepo) FindAnyLiveByURL(_ context.Context, fullShortURL string) (*model.ShortLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.FullShortURL == fullShortURL && link.DelFlag == 0 {
			cp := *link
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) FindGotoByURL(_ context.Context, fullShortURL string) (*model.LinkGoto, error) {
	atomic.AddInt32(&r.gotoLookups, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	gt, ok := r.gotos[fullShortURL]
	if !ok {
		return nil, nil
	}
	cp := *gt
	return &cp, nil
}

func (r *fakeRepo) UpdateInGroup(_ context.Context, fullShortURL, gid string, upd repository.LinkUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[linkKey(fullShortURL, gid)]
	if !ok {
		return nil
	}
	link.OriginURL = upd.OriginURL
	link.Describe = upd.Describe
	link.ValidDateType = upd.ValidDateType
	link.ValidDate = upd.ValidDate
	if upd.ValidDateType == model.ValidTypePermanent {
		link.ValidDate = nil
	}
	return nil
}

func (r *fakeRepo) MoveGroup(_ context.Context, old *model.ShortLink, newGid string, upd repository.LinkUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.links[linkKey(old.FullShortURL, old.Gid)]; ok {
		prev.DelFlag = 1
		prev.DelTime = time.Now().UnixMilli()
	}
	validDate := upd.ValidDate
	if upd.ValidDateType == model.ValidTypePermanent {
		validDate = nil
	}
	fresh := *old
	fresh.Gid = newGid
	fresh.OriginURL = upd.OriginURL
	fresh.Describe = upd.Describe
	fresh.ValidDateType = upd.ValidDateType
	fresh.ValidDate = validDate
	fresh.DelFlag = 0
	fresh.DelTime = 0
	r.links[linkKey(old.FullShortURL, newGid)] = &fresh
	if gt, ok := r.gotos[old.FullShortURL]; ok {
		gt.Gid = newGid
	}
	return nil
}

func (r *fakeRepo) CountByGroups(_ context.Context, gids []string) ([]repository.GroupCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, link := range r.links {
		if link.DelFlag == 0 {
			counts[link.Gid]++
		}
	}
	var result []repository.GroupCount
	for _, gid := range gids {
		result = append(result, repository.GroupCount{Gid: gid, ShortLinkCount: counts[gid]})
	}
	return result, nil
}

func (r *fakeRepo) PageByGroup(_ context.Context, gid string, current, size int) ([]model.ShortLink, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var links []model.ShortLink
	for _, link := range r.links {
		if link.Gid == gid && link.DelFlag == 0 {
			links = append(links, *link)
		}
	}
	return links, int64(len(links)), nil
}

type fakeFilter struct {
	mu          sync.Mutex
	members     map[string]bool
	containsErr error
}

func newFakeFilter() *fakeFilter {
	return &fakeFilter{members: make(map[string]bool)}
}

func (f *fakeFilter) Contains(_ context.Context, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.containsErr != nil {
		return false, f.containsErr
	}
	return f.members[value], nil
}

func (f *fakeFilter) Add(_ context.Context, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[value] = true
	return nil
}

type fakeCache struct {
	mu         sync.Mutex
	targets    map[string]string
	tombstones map[string]bool
	uvSets     map[string]map[string]bool
	uipSets    map[string]map[string]bool
	setCalls   int
	// down 为 true 时所有操作返回错误，模拟缓存整体故障
	down bool
}

var errCacheDown = errors.New("缓存连接失败")

func (c *fakeCache) setDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = down
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		targets:    make(map[string]string),
		tombstones: make(map[string]bool),
		uvSets:     make(map[string]map[string]bool),
		uipSets:    make(map[string]map[string]bool),
	}
}

func (c *fakeCache) GetTarget(_ context.Context, fullShortURL string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return "", false, errCacheDown
	}
	target, ok := c.targets[fullShortURL]
	return target, ok, nil
}

func (c *fakeCache) SetTarget(_ context.Context, fullShortURL, originURL string, _ *time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errCacheDown
	}
	c.targets[fullShortURL] = originURL
	c.setCalls++
	return nil
}

func (c *fakeCache) DelTarget(_ context.Context, fullShortURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.targets, fullShortURL)
	return nil
}

func (c *fakeCache) HasTombstone(_ context.Context, fullShortURL string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return false, errCacheDown
	}
	return c.tombstones[fullShortURL], nil
}

func (c *fakeCache) SetTombstone(_ context.Context, fullShortURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tombstones[fullShortURL] = true
	return nil
}

func (c *fakeCache) DelTombstone(_ context.Context, fullShortURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tombstones, fullShortURL)
	return nil
}

func addToSet(sets map[string]map[string]bool, key, member string) bool {
	set, ok := sets[key]
	if !ok {
		set = make(map[string]bool)
		sets[key] = set
	}
	if set[member] {
		return false
	}
	set[member] = true
	return true
}

func (c *fakeCache) AddUv(_ context.Context, fullShortURL, visitor string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return false, errCacheDown
	}
	return addToSet(c.uvSets, fullShortURL, visitor), nil
}

func (c *fakeCache) AddUip(_ context.Context, fullShortURL, ip string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return false, errCacheDown
	}
	return addToSet(c.uipSets, fullShortURL, ip), nil
}

type fakeUnlock struct{ fn func() }

func (u *fakeUnlock) Unlock(context.Context) error {
	if u.fn != nil {
		u.fn()
	}
	return nil
}

// fakeLocks 用进程内互斥量模拟分布式锁的排他语义
type fakeLocks struct {
	mu        sync.Mutex
	mutexes   map[string]*sync.Mutex
	writeHeld map[string]bool
	// down 为 true 时所有加锁调用返回错误，模拟锁服务故障
	down bool
	// busy 为 true 时互斥加锁以超时失败收场，锁服务本身健康
	busy bool
}

var errLockDown = errors.New("锁服务连接失败")

func newFakeLocks() *fakeLocks {
	return &fakeLocks{
		mutexes:   make(map[string]*sync.Mutex),
		writeHeld: make(map[string]bool),
	}
}

func (l *fakeLocks) mutexFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.mutexes[key]
	if !ok {
		m = &sync.Mutex{}
		l.mutexes[key] = m
	}
	return m
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _, _ time.Duration) (Unlocker, bool, error) {
	l.mu.Lock()
	down, busy := l.down, l.busy
	l.mu.Unlock()
	if down {
		return nil, false, errLockDown
	}
	if busy {
		return nil, false, nil
	}
	m := l.mutexFor(key)
	m.Lock()
	return &fakeUnlock{fn: m.Unlock}, true, nil
}

func (l *fakeLocks) RLock(_ context.Context, key string, _, _ time.Duration) (Unlocker, bool, error) {
	l.mu.Lock()
	down, held := l.down, l.writeHeld[key]
	l.mu.Unlock()
	if down {
		return nil, false, errLockDown
	}
	if held {
		return nil, false, nil
	}
	return &fakeUnlock{}, true, nil
}

func (l *fakeLocks) TryLockWrite(_ context.Context, key string, _ time.Duration) (Unlocker, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return nil, false, errLockDown
	}
	if l.writeHeld[key] {
		return nil, false, nil
	}
	l.writeHeld[key] = true
	return &fakeUnlock{fn: func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.writeHeld[key] = false
	}}, true, nil
}

func (l *fakeLocks) setDown(down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.down = down
}

func (l *fakeLocks) setBusy(busy bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.busy = busy
}

func (l *fakeLocks) holdWrite(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeHeld[key] = true
}

type fakeAlloc struct {
	mu       sync.Mutex
	suffixes []string
	idx      int
}

func (a *fakeAlloc) Allocate(context.Context, string, string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	suffix := a.suffixes[a.idx%len(a.suffixes)]
	a.idx++
	return suffix, nil
}

type fakeProducer struct {
	mu      sync.Mutex
	records []stats.Record
}

func (p *fakeProducer) RecordVisit(rec stats.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
}

func (p *fakeProducer) all() []stats.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stats.Record(nil), p.records...)
}

type testDeps struct {
	repo     *fakeRepo
	filter   *fakeFilter
	cache    *fakeCache
	locks    *fakeLocks
	alloc    *fakeAlloc
	producer *fakeProducer
}

func newTestService(suffixes ...string) (*LinkService, *testDeps) {
	if len(suffixes) == 0 {
		suffixes = []string{"aaa111"}
	}
	deps := &testDeps{
		repo:     newFakeRepo(),
		filter:   newFakeFilter(),
		cache:    newFakeCache(),
		locks:    newFakeLocks(),
		alloc:    &fakeAlloc{suffixes: suffixes},
		producer: &fakeProducer{},
	}
	cfg := &config.Config{
		ShortLink: config.ShortLink{DefaultDomain: "sho.rt"},
	}
	svc := NewLinkService(deps.repo, deps.filter, deps.cache, deps.locks,
		deps.alloc, deps.producer, cfg, zap.NewNop().Sugar())
	return svc, deps
}
