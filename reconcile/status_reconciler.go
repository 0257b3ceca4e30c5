package reconcile

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/internal/circuitbreaker"
	"github.com/BaSui01/kpreconcile/pipeline"
	"github.com/BaSui01/kpreconcile/sources"
)

// StatusReconcilerName 执行状态对账器名称
const StatusReconcilerName = "status"

// StatusReconciler 执行状态对账
// 每个周期读取所有 running 管道，逐条查询状态索引、归约分片状态并写回。
// 条目之间互相独立，任何一条失败都不影响其他条目。
type StatusReconciler struct {
	*runner
	store  pipeline.Store
	source sources.StatusSource
}

// NewStatusReconciler 创建执行状态对账器
func NewStatusReconciler(store pipeline.Store, source sources.StatusSource, opts ...Option) *StatusReconciler {
	return &StatusReconciler{
		runner: newRunner(StatusReconcilerName, opts),
		store:  store,
		source: source,
	}
}

// Name 实现 Reconciler
func (s *StatusReconciler) Name() string { return StatusReconcilerName }

// RunCycle 执行一个对账周期
// 只有读取 running 记录失败才返回周期级错误；单条失败记录在 Summary 中。
// 上一周期未结束时返回 ErrCycleInProgress。
func (s *StatusReconciler) RunCycle(ctx context.Context) (*Summary, error) {
	return s.run(ctx, func(ctx context.Context, summary *Summary) error {
		records, err := s.store.FindRunning(ctx)
		if err != nil {
			return err
		}

		for i := range records {
			if ctx.Err() != nil {
				// 周期超时或被取消：剩余条目留给下一周期
				for _, rest := range records[i:] {
					summary.Add(Outcome{
						PipelineID: rest.ID,
						IndexName:  rest.IndexName,
						Result:     ResultSkipped,
						Reason:     ReasonCycleCanceled,
					})
				}
				break
			}
			summary.Add(s.reconcileOne(ctx, &records[i]))
		}
		return nil
	})
}

func (s *StatusReconciler) reconcileOne(ctx context.Context, rec *pipeline.Record) Outcome {
	out := Outcome{PipelineID: rec.ID, IndexName: rec.IndexName}
	log := s.logger.With(
		zap.String("pipeline_id", rec.ID),
		zap.String("index_name", rec.IndexName),
	)

	if !rec.HasIndexName() {
		log.Warn("pipeline has no index name, skipping")
		out.Result, out.Reason = ResultSkipped, ReasonBlankIndexName
		return out
	}

	ctx, span := s.itemSpan(ctx, rec.ID)
	defer span.End()

	docs, err := s.source.QueryStatus(ctx, rec.IndexName)
	if err != nil {
		out.Result, out.Reason, out.Err = ResultFailed, ReasonQueryFailed, err
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			out.Reason = ReasonCircuitOpen
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, out.Reason)
		log.Warn("status query failed, skipping this cycle", zap.Error(err))
		return out
	}
	if len(docs) == 0 {
		log.Debug("no status documents yet, skipping")
		out.Result, out.Reason = ResultSkipped, ReasonNoDocuments
		return out
	}

	status := DetermineStatus(docs)
	update := pipeline.LoadUpdate{Status: status}
	if progress, ok := DetermineProgress(docs, log); ok {
		// 已上报的进度只增不减：分片重报或 rate 缺失时保留存储值
		if status == pipeline.LoadRunning && progress < rec.Progress {
			log.Debug("keeping higher stored progress",
				zap.Float64("stored", rec.Progress),
				zap.Float64("observed", progress))
			progress = rec.Progress
		}
		update.Progress = &progress
	}
	if status == pipeline.LoadComplete {
		now := s.now()
		update.CompletedAt = &now
	}

	span.SetAttributes(
		attribute.Int("documents", len(docs)),
		attribute.String("load_status", string(status)),
	)

	if err := s.store.UpdateLoad(ctx, rec.ID, update); err != nil {
		out.Result, out.Reason, out.Err = ResultFailed, ReasonWriteFailed, err
		span.RecordError(err)
		span.SetStatus(codes.Error, out.Reason)
		log.Error("failed to persist load status", zap.Error(err))
		return out
	}

	out.Result = ResultUpdated
	out.From, out.To = string(rec.LoadStatus), string(status)
	if rec.LoadStatus != status {
		s.metrics.ObserveTransition("load_status", string(rec.LoadStatus), string(status))
		log.Info("pipeline status changed",
			zap.String("from", string(rec.LoadStatus)),
			zap.String("to", string(status)))
	}
	return out
}
