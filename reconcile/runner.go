package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/types"
)

const tracerName = "github.com/BaSui01/kpreconcile/reconcile"

// Reconciler 一个可被调度的对账器
type Reconciler interface {
	Name() string
	RunCycle(ctx context.Context) (*Summary, error)
}

// Option 对账器可选参数
type Option func(*runner)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(r *runner) { r.logger = logger }
}

// WithMetrics 设置指标接收方
func WithMetrics(m Metrics) Option {
	return func(r *runner) { r.metrics = m }
}

// WithSummaryStore 设置摘要存储
func WithSummaryStore(s SummaryStore) Option {
	return func(r *runner) { r.summaries = s }
}

// WithLease 启用跨副本租约
func WithLease(lease LeaseStore, ttl time.Duration) Option {
	return func(r *runner) {
		r.lease = lease
		r.leaseTTL = ttl
	}
}

// WithCycleTimeout 设置单个周期的总超时
func WithCycleTimeout(d time.Duration) Option {
	return func(r *runner) { r.cycleTimeout = d }
}

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(r *runner) { r.now = now }
}

// WithRecipePrefix 设置 recipe key 前缀，仅同步对账使用
func WithRecipePrefix(prefix string) Option {
	return func(r *runner) { r.recipePrefix = prefix }
}

// runner 两个对账器共享的周期骨架：重入保护、超时、追踪、指标与摘要
type runner struct {
	name         string
	logger       *zap.Logger
	metrics      Metrics
	summaries    SummaryStore
	lease        LeaseStore
	leaseTTL     time.Duration
	cycleTimeout time.Duration
	now          func() time.Time
	recipePrefix string

	guard  *Guard
	tracer trace.Tracer
}

func newRunner(name string, opts []Option) *runner {
	r := &runner{
		name:         name,
		cycleTimeout: 10 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.With(zap.String("reconciler", name))
	if r.metrics == nil {
		r.metrics = nopMetrics{}
	}
	if r.leaseTTL <= 0 {
		r.leaseTTL = r.cycleTimeout + time.Minute
	}
	r.guard = NewGuard(name, r.lease, r.leaseTTL, r.metrics, r.logger)
	r.tracer = otel.Tracer(tracerName)
	return r
}

// run 执行一个受保护的周期；body 只负责填充 summary，返回周期级错误
func (r *runner) run(ctx context.Context, body func(ctx context.Context, summary *Summary) error) (*Summary, error) {
	release, err := r.guard.TryEnter(ctx)
	if err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			r.metrics.ObserveSkippedCycle(r.name)
			r.logger.Info("previous cycle still running, skipping")
		} else {
			r.metrics.ObserveCycle(r.name, CycleOutcomeFailed, 0)
			r.logger.Error("failed to acquire cycle lease", zap.Error(err))
		}
		return nil, err
	}
	defer release()

	if r.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cycleTimeout)
		defer cancel()
	}

	summary := &Summary{
		Reconciler: r.name,
		CycleID:    uuid.NewString(),
		StartedAt:  r.now(),
	}
	ctx = types.WithReconciler(types.WithCycleID(ctx, summary.CycleID), r.name)

	ctx, span := r.tracer.Start(ctx, "reconcile."+r.name+".cycle",
		trace.WithAttributes(
			attribute.String("reconciler", r.name),
			attribute.String("cycle_id", summary.CycleID),
		))
	defer span.End()

	log := r.logger.With(zap.String("cycle_id", summary.CycleID))
	log.Debug("cycle started")

	cycleErr := body(ctx, summary)
	summary.FinishedAt = r.now()
	if cycleErr != nil {
		summary.Error = cycleErr.Error()
		span.RecordError(cycleErr)
		span.SetStatus(codes.Error, cycleErr.Error())
	}

	span.SetAttributes(
		attribute.Int("pipelines.total", summary.Total),
		attribute.Int("pipelines.updated", summary.Updated),
		attribute.Int("pipelines.unchanged", summary.Unchanged),
		attribute.Int("pipelines.skipped", summary.Skipped),
		attribute.Int("pipelines.failed", summary.Failed),
	)

	r.record(ctx, log, summary)
	return summary, cycleErr
}

// record 只把摘要用于日志、指标与持久化，不参与控制流
func (r *runner) record(ctx context.Context, log *zap.Logger, summary *Summary) {
	outcome := summary.CycleOutcome()
	r.metrics.ObserveCycle(r.name, outcome, summary.Duration())
	for _, o := range summary.Outcomes {
		r.metrics.ObserveItem(r.name, string(o.Result))
	}

	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Int("total", summary.Total),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration()),
	}
	switch outcome {
	case CycleOutcomeFailed:
		log.Error("cycle aborted", append(fields, zap.String("error", summary.Error))...)
	case CycleOutcomePartial:
		log.Warn("cycle finished with failures", fields...)
	default:
		log.Info("cycle finished", fields...)
	}

	if r.summaries == nil {
		return
	}
	// 周期 context 可能已接近超时，摘要写入使用独立超时
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.summaries.Save(saveCtx, summary); err != nil {
		log.Warn("failed to save cycle summary", zap.Error(err))
	}
}

// itemSpan 为单条管道开启子 span
func (r *runner) itemSpan(ctx context.Context, pipelineID string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "reconcile."+r.name+".item",
		trace.WithAttributes(attribute.String("pipeline_id", pipelineID)))
}
