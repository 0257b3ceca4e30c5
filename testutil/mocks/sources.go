// Mock 数据源：状态索引与编排器的测试模拟实现。
//
// 支持按索引固定响应、错误注入、延迟与调用计数。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/kpreconcile/pipeline"
	"github.com/BaSui01/kpreconcile/sources"
)

// --- MockStatusSource ---

// MockStatusSource 是 sources.StatusSource 的模拟实现
type MockStatusSource struct {
	mu sync.RWMutex

	docs   map[string][]sources.StatusDocument
	errs   map[string]error
	err    error
	delay  time.Duration
	before func(ctx context.Context, indexName string)

	calls []string
}

// NewMockStatusSource 创建新的 MockStatusSource
func NewMockStatusSource() *MockStatusSource {
	return &MockStatusSource{
		docs: make(map[string][]sources.StatusDocument),
		errs: make(map[string]error),
	}
}

// WithDocuments 设置指定索引的查询结果
func (m *MockStatusSource) WithDocuments(indexName string, docs ...sources.StatusDocument) *MockStatusSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[indexName] = docs
	return m
}

// WithIndexError 让指定索引的查询返回错误
func (m *MockStatusSource) WithIndexError(indexName string, err error) *MockStatusSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[indexName] = err
	return m
}

// WithError 让所有查询返回错误
func (m *MockStatusSource) WithError(err error) *MockStatusSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置每次查询的延迟，ctx 取消时提前返回
func (m *MockStatusSource) WithDelay(d time.Duration) *MockStatusSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// OnQuery 设置查询前回调
func (m *MockStatusSource) OnQuery(fn func(ctx context.Context, indexName string)) *MockStatusSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.before = fn
	return m
}

// Name 实现 StatusSource
func (m *MockStatusSource) Name() string { return "mock-status" }

// QueryStatus 实现 StatusSource
func (m *MockStatusSource) QueryStatus(ctx context.Context, indexName string) ([]sources.StatusDocument, error) {
	m.mu.Lock()
	m.calls = append(m.calls, indexName)
	delay, before := m.delay, m.before
	m.mu.Unlock()

	if before != nil {
		before(ctx, indexName)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if err := m.errs[indexName]; err != nil {
		return nil, err
	}
	docs := m.docs[indexName]
	out := make([]sources.StatusDocument, len(docs))
	copy(out, docs)
	return out, nil
}

// Calls 返回按调用顺序记录的索引名
func (m *MockStatusSource) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockStatusSource) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// --- MockActivitySource ---

// MockActivitySource 是 sources.ActivitySource 的模拟实现
type MockActivitySource struct {
	mu sync.RWMutex

	activities []sources.Activity
	err        error
	delay      time.Duration

	calls []pipeline.Environment
}

// NewMockActivitySource 创建新的 MockActivitySource
func NewMockActivitySource(activities ...sources.Activity) *MockActivitySource {
	return &MockActivitySource{activities: activities}
}

// WithActivities 替换返回的 activity 列表
func (m *MockActivitySource) WithActivities(activities ...sources.Activity) *MockActivitySource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = activities
	return m
}

// WithError 设置返回错误，传 nil 恢复
func (m *MockActivitySource) WithError(err error) *MockActivitySource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置拉取延迟，ctx 取消时提前返回
func (m *MockActivitySource) WithDelay(d time.Duration) *MockActivitySource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Name 实现 ActivitySource
func (m *MockActivitySource) Name() string { return "mock-activity" }

// FetchActivities 实现 ActivitySource
func (m *MockActivitySource) FetchActivities(ctx context.Context, env pipeline.Environment) ([]sources.Activity, error) {
	m.mu.Lock()
	m.calls = append(m.calls, env)
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]sources.Activity(nil), m.activities...), nil
}

// Calls 返回每次调用的环境
func (m *MockActivitySource) Calls() []pipeline.Environment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]pipeline.Environment(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockActivitySource) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}
