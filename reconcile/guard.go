package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/kpreconcile/types"
)

// ErrCycleInProgress 上一个周期仍在执行，本次调用被跳过
var ErrCycleInProgress = types.NewError(types.ErrCycleInProgress, "reconciliation cycle already in progress").
	WithHTTPStatus(409)

// LeaseStore 跨副本的周期租约，由 cache.Manager 实现
type LeaseStore interface {
	AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, token string) (bool, error)
}

// Guard 非重入保护
// 进程内用单槽信号量 TryAcquire，重叠调用直接跳过而不是排队；
// 配置了 LeaseStore 时再抢占一次 Redis 租约，避免多副本交错执行。
type Guard struct {
	name    string
	sem     *semaphore.Weighted
	lease   LeaseStore
	ttl     time.Duration
	metrics Metrics
	logger  *zap.Logger
}

// NewGuard 创建保护器，lease 为 nil 时只做进程内保护
func NewGuard(name string, lease LeaseStore, ttl time.Duration, metrics Metrics, logger *zap.Logger) *Guard {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Guard{
		name:    name,
		sem:     semaphore.NewWeighted(1),
		lease:   lease,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// TryEnter 尝试进入临界区，成功时返回释放函数
func (g *Guard) TryEnter(ctx context.Context) (release func(), err error) {
	if !g.sem.TryAcquire(1) {
		return nil, ErrCycleInProgress
	}
	if g.lease == nil {
		return func() { g.sem.Release(1) }, nil
	}

	key := "lease:" + g.name
	token := uuid.NewString()
	ok, err := g.lease.AcquireLease(ctx, key, token, g.ttl)
	if err != nil {
		g.sem.Release(1)
		g.metrics.ObserveLease(g.name, "error")
		return nil, err
	}
	if !ok {
		g.sem.Release(1)
		g.metrics.ObserveLease(g.name, "held")
		return nil, ErrCycleInProgress
	}
	g.metrics.ObserveLease(g.name, "acquired")

	return func() {
		// 周期 context 可能已超时，释放使用独立的短超时
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := g.lease.ReleaseLease(releaseCtx, key, token); err != nil {
			g.logger.Warn("failed to release cycle lease", zap.String("key", key), zap.Error(err))
		}
		g.sem.Release(1)
	}, nil
}
