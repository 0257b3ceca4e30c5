package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/pipeline"
	"github.com/BaSui01/kpreconcile/sources"
)

// SyncReconcilerName 同步状态对账器名称
const SyncReconcilerName = "sync"

// desiredStateStarted 编排器中持续同步处于运行期望态的取值
const desiredStateStarted = "STARTED"

// SyncReconciler 同步状态对账
// 每个周期按环境选出同步目标，一次批量拉取全部 continuous activity，
// 建立 recipeId 索引后逐条做键值关联，只在值变化时写回 sync_status。
type SyncReconciler struct {
	*runner
	store  pipeline.Store
	source sources.ActivitySource
	env    pipeline.Environment
}

// NewSyncReconciler 创建同步状态对账器，env 在构造时注入
func NewSyncReconciler(store pipeline.Store, source sources.ActivitySource, env pipeline.Environment, opts ...Option) *SyncReconciler {
	return &SyncReconciler{
		runner: newRunner(SyncReconcilerName, opts),
		store:  store,
		source: source,
		env:    env,
	}
}

// Name 实现 Reconciler
func (s *SyncReconciler) Name() string { return SyncReconcilerName }

// Environment 返回注入的目标环境
func (s *SyncReconciler) Environment() pipeline.Environment { return s.env }

// RunCycle 执行一个对账周期
// 读取目标或批量拉取失败时中止本周期并返回错误，不影响执行状态对账。
func (s *SyncReconciler) RunCycle(ctx context.Context) (*Summary, error) {
	return s.run(ctx, func(ctx context.Context, summary *Summary) error {
		records, err := s.store.FindSyncTargets(ctx, s.env)
		if err != nil {
			return err
		}

		activities, err := s.source.FetchActivities(ctx, s.env)
		if err != nil {
			return fmt.Errorf("fetch continuous activities: %w", err)
		}
		index := IndexActivities(activities)

		s.logger.Debug("activity index built",
			zap.String("environment", s.env.String()),
			zap.Int("targets", len(records)),
			zap.Int("activities", len(activities)),
			zap.Int("indexed", len(index)))

		for i := range records {
			if ctx.Err() != nil {
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
			summary.Add(s.reconcileOne(ctx, &records[i], index))
		}
		return nil
	})
}

func (s *SyncReconciler) reconcileOne(ctx context.Context, rec *pipeline.Record, index map[string]sources.Activity) Outcome {
	recipeKey := rec.RecipeKey(s.recipePrefix)
	target, reason := DetermineSyncStatus(recipeKey, index)

	out := Outcome{
		PipelineID: rec.ID,
		IndexName:  rec.IndexName,
		Reason:     reason,
		From:       string(rec.SyncStatus),
		To:         string(target),
	}
	log := s.logger.With(
		zap.String("pipeline_id", rec.ID),
		zap.String("recipe_key", recipeKey),
	)
	if reason != "" {
		log.Debug("sync leg unhealthy", zap.String("reason", reason))
	}

	// 写入抑制：值未变化时不写
	if rec.SyncStatus == target {
		out.Result = ResultUnchanged
		return out
	}

	ctx, span := s.itemSpan(ctx, rec.ID)
	defer span.End()

	if err := s.store.UpdateSyncStatus(ctx, rec.ID, target); err != nil {
		out.Result, out.Err = ResultFailed, err
		out.Reason = ReasonWriteFailed
		span.RecordError(err)
		log.Error("failed to persist sync status", zap.Error(err))
		return out
	}

	out.Result = ResultUpdated
	s.metrics.ObserveTransition("sync_status", string(rec.SyncStatus), string(target))
	log.Info("sync status changed",
		zap.String("from", string(rec.SyncStatus)),
		zap.String("to", string(target)),
		zap.String("reason", reason))
	return out
}

// IndexActivities 单次遍历建立 recipeId -> Activity 索引
// 目标记录与 activity 的关联走哈希查找，整体 O(N+M)，不要退化为嵌套循环。
// recipeId 重复时以后出现的记录为准。
func IndexActivities(activities []sources.Activity) map[string]sources.Activity {
	index := make(map[string]sources.Activity, len(activities))
	for _, a := range activities {
		index[a.RecipeID] = a
	}
	return index
}

// DetermineSyncStatus 根据 recipe key 的关联结果判定同步健康度
// 返回值 reason 在 error 时说明原因，normal 时为空。
func DetermineSyncStatus(recipeKey string, index map[string]sources.Activity) (pipeline.SyncStatus, string) {
	activity, ok := index[recipeKey]
	if !ok {
		return pipeline.SyncError, ReasonRecipeNotFound
	}
	if activity.DesiredState == nil {
		return pipeline.SyncError, ReasonDesiredStateNull
	}
	if *activity.DesiredState == desiredStateStarted {
		return pipeline.SyncNormal, ""
	}
	return pipeline.SyncError, ReasonUnexpectedDesired + ":" + *activity.DesiredState
}
