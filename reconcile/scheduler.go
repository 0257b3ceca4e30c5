package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// ⏰ 调度器
// =============================================================================

// Job 一个按固定间隔执行的对账任务
type Job struct {
	Reconciler Reconciler
	Interval   time.Duration
	RunOnStart bool
}

// Scheduler 按各自间隔驱动多个对账器
// 每个 tick 在独立 goroutine 中执行周期，上一周期未结束时由 Guard 跳过本次 tick。
type Scheduler struct {
	jobs   []Job
	logger *zap.Logger

	mu       sync.Mutex
	running  bool
	inflight sync.WaitGroup
}

// NewScheduler 创建调度器
func NewScheduler(logger *zap.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{jobs: jobs, logger: logger.With(zap.String("component", "scheduler"))}
}

// Jobs 返回已注册的任务
func (s *Scheduler) Jobs() []Job {
	return append([]Job(nil), s.jobs...)
}

// Run 阻塞运行直到 ctx 取消，返回前等待所有进行中的周期结束
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for _, job := range s.jobs {
		if job.Reconciler == nil {
			return errors.New("scheduler job has no reconciler")
		}
		if job.Interval <= 0 {
			return fmt.Errorf("reconciler %s: interval must be positive", job.Reconciler.Name())
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error {
			s.loop(gCtx, job)
			return nil
		})
	}
	err := g.Wait()
	s.inflight.Wait()
	return err
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	name := job.Reconciler.Name()
	s.logger.Info("reconciler scheduled",
		zap.String("reconciler", name),
		zap.Duration("interval", job.Interval),
		zap.Bool("run_on_start", job.RunOnStart))

	if job.RunOnStart {
		s.dispatch(ctx, job.Reconciler)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciler stopped", zap.String("reconciler", name))
			return
		case <-ticker.C:
			s.dispatch(ctx, job.Reconciler)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, r Reconciler) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("reconcile cycle panicked",
					zap.String("reconciler", r.Name()),
					zap.Any("panic", rec))
			}
		}()

		_, err := r.RunCycle(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrCycleInProgress):
			s.logger.Debug("tick skipped, cycle in progress", zap.String("reconciler", r.Name()))
		case errors.Is(err, context.Canceled):
			s.logger.Debug("cycle canceled", zap.String("reconciler", r.Name()))
		default:
			// 周期级错误已在 runner 中记录，这里只保留调度视角
			s.logger.Warn("reconcile cycle returned error",
				zap.String("reconciler", r.Name()), zap.Error(err))
		}
	}()
}
