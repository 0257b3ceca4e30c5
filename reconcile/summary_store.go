package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/kpreconcile/internal/cache"
)

// ErrNoSummary 对账器尚未完成过任何周期
var ErrNoSummary = errors.New("no summary recorded")

// summaryOutcomeLimit 持久化摘要中保留的非成功条目上限
const summaryOutcomeLimit = 100

// SummaryStore 保存每个对账器最近一次周期的摘要
type SummaryStore interface {
	Save(ctx context.Context, summary *Summary) error
	Latest(ctx context.Context, reconciler string) (*Summary, error)
}

// =============================================================================
// 🧠 内存实现
// =============================================================================

// MemorySummaryStore 单副本部署或测试用的内存摘要存储
type MemorySummaryStore struct {
	mu     sync.RWMutex
	latest map[string]*Summary
}

// NewMemorySummaryStore 创建内存摘要存储
func NewMemorySummaryStore() *MemorySummaryStore {
	return &MemorySummaryStore{latest: make(map[string]*Summary)}
}

// Save 保存摘要
func (m *MemorySummaryStore) Save(_ context.Context, summary *Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[summary.Reconciler] = summary.Compact(summaryOutcomeLimit)
	return nil
}

// Latest 读取最近一次摘要
func (m *MemorySummaryStore) Latest(_ context.Context, reconciler string) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.latest[reconciler]
	if !ok {
		return nil, ErrNoSummary
	}
	cp := *s
	return &cp, nil
}

// =============================================================================
// 💾 Redis 实现
// =============================================================================

// RedisSummaryStore 基于 cache.Manager 的摘要存储，多副本共享
type RedisSummaryStore struct {
	cache *cache.Manager
	ttl   time.Duration
}

// NewRedisSummaryStore 创建 Redis 摘要存储，ttl 为 0 时使用缓存默认过期时间
func NewRedisSummaryStore(m *cache.Manager, ttl time.Duration) *RedisSummaryStore {
	return &RedisSummaryStore{cache: m, ttl: ttl}
}

func summaryKey(reconciler string) string {
	return "summary:" + reconciler
}

// Save 保存摘要
func (r *RedisSummaryStore) Save(ctx context.Context, summary *Summary) error {
	return r.cache.SetJSON(ctx, summaryKey(summary.Reconciler), summary.Compact(summaryOutcomeLimit), r.ttl)
}

// Latest 读取最近一次摘要
func (r *RedisSummaryStore) Latest(ctx context.Context, reconciler string) (*Summary, error) {
	var s Summary
	if err := r.cache.GetJSON(ctx, summaryKey(reconciler), &s); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, ErrNoSummary
		}
		return nil, err
	}
	return &s, nil
}
