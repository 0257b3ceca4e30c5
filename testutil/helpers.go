// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 对账测试常用的上下文、管道状态断言、轮询等待与可控时钟
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertLoadState(t, testutil.MustGet(t, store, "p1"), pipeline.LoadComplete, 100)
// =============================================================================
package testutil

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/kpreconcile/pipeline"
)

// pollInterval 轮询等待的间隔
const pollInterval = 5 * time.Millisecond

// TestContext 返回 30 秒超时、随测试结束取消的上下文
func TestContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// 🔍 管道状态断言
// =============================================================================

// MustGet 从存储读取记录，失败时终止测试
func MustGet(t testing.TB, store pipeline.Store, id string) *pipeline.Record {
	t.Helper()
	rec, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get pipeline %s: %v", id, err)
	}
	return rec
}

// AssertLoadState 断言执行状态与进度，进度按 1e-9 容差比较
func AssertLoadState(t testing.TB, rec *pipeline.Record, status pipeline.LoadStatus, progress float64) {
	t.Helper()
	if rec == nil {
		t.Fatalf("record is nil")
	}
	if rec.LoadStatus != status {
		t.Errorf("pipeline %s: load status %q, want %q", rec.ID, rec.LoadStatus, status)
	}
	if math.Abs(rec.Progress-progress) > 1e-9 {
		t.Errorf("pipeline %s: progress %v, want %v", rec.ID, rec.Progress, progress)
	}
}

// AssertSyncState 断言同步状态
func AssertSyncState(t testing.TB, rec *pipeline.Record, status pipeline.SyncStatus) {
	t.Helper()
	if rec == nil {
		t.Fatalf("record is nil")
	}
	if rec.SyncStatus != status {
		t.Errorf("pipeline %s: sync status %q, want %q", rec.ID, rec.SyncStatus, status)
	}
}

// AssertContains 断言字符串包含子串
func AssertContains(t testing.TB, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

// =============================================================================
// ⏱️ 等待与时钟
// =============================================================================

// WaitFor 轮询直到条件满足，超时返回 false
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// AssertEventuallyTrue 断言条件在 timeout 内变为真
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// FixedClock 返回始终给出 t 的时钟
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// ManualClock 由测试推进的时钟，可并发读取
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock 创建从 start 开始的时钟
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now 返回当前时间，可直接作为 reconcile.WithClock 的参数
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 把时钟向前推进 d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
