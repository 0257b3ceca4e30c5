package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/kpreconcile/api/handlers"
	"github.com/BaSui01/kpreconcile/config"
	"github.com/BaSui01/kpreconcile/internal/metrics"
	"github.com/BaSui01/kpreconcile/internal/server"
	"github.com/BaSui01/kpreconcile/reconcile"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组合调度器、运维 API 与 metrics 三个长期运行的部分
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	comps     *components
	scheduler *reconcile.Scheduler
	watcher   *config.Watcher

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler    *handlers.HealthHandler
	reconcileHandler *handlers.ReconcileHandler

	metricsCollector *metrics.Collector
}

// NewServer 装配全部组件，不启动任何监听
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	collector := metrics.NewCollector("kpreconcile", logger)

	comps, err := buildComponents(cfg, collector, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:              cfg,
		logger:           logger,
		comps:            comps,
		metricsCollector: collector,
	}
	s.initHandlers()
	s.scheduler = reconcile.NewScheduler(logger, s.jobs()...)
	s.httpManager = server.NewManager("api", s.routes(), server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		TLSCertFile:     cfg.Server.TLSCertFile,
		TLSKeyFile:      cfg.Server.TLSKeyFile,
	}, logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsManager = server.NewManager("metrics", metricsMux, server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.ReadTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	return s, nil
}

// AttachWatcher 注册配置监听器，随 Run 启停
func (s *Server) AttachWatcher(w *config.Watcher) {
	s.watcher = w
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.comps.pool.Ping))
	if s.comps.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.comps.cache.Ping))
	}

	s.reconcileHandler = handlers.NewReconcileHandler(s.comps.summaries, s.logger,
		s.comps.status, s.comps.sync)
}

// jobs 返回启用的定时任务
func (s *Server) jobs() []reconcile.Job {
	rc := s.cfg.Reconciler
	var jobs []reconcile.Job
	if rc.StatusEnabled {
		jobs = append(jobs, reconcile.Job{Reconciler: s.comps.status, Interval: rc.StatusInterval, RunOnStart: rc.RunOnStart})
	}
	if rc.SyncEnabled {
		jobs = append(jobs, reconcile.Job{Reconciler: s.comps.sync, Interval: rc.SyncInterval, RunOnStart: rc.RunOnStart})
	}
	return jobs
}

// =============================================================================
// 🌐 HTTP 路由
// =============================================================================

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/reconcile/{reconciler}/run", s.reconcileHandler.HandleRun)
	mux.HandleFunc("GET /api/v1/reconcile/summaries", s.reconcileHandler.HandleSummaries)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	authenticators := buildAuthenticators(s.cfg, s.logger)
	if len(authenticators) == 0 {
		s.logger.Warn("no API keys or JWT configured, operator API is unauthenticated")
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector, mux),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		Auth(skipAuthPaths, s.logger, authenticators...),
	)
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 阻塞运行直到 ctx 结束；任一部分异常退出时其余部分一起停止
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.comps.Close(); err != nil {
			s.logger.Warn("failed to close connections", zap.Error(err))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			return fmt.Errorf("start config watcher: %w", err)
		}
		defer s.watcher.Stop()
	}

	g.Go(func() error { return s.httpManager.Run(ctx) })
	g.Go(func() error { return s.metricsManager.Run(ctx) })
	g.Go(func() error {
		if len(s.scheduler.Jobs()) == 0 {
			s.logger.Warn("all reconcilers disabled, serving API only")
			<-ctx.Done()
			return nil
		}
		return s.scheduler.Run(ctx)
	})

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("status_enabled", s.cfg.Reconciler.StatusEnabled),
		zap.Bool("sync_enabled", s.cfg.Reconciler.SyncEnabled),
		zap.Bool("redis_enabled", s.comps.cache != nil),
	)

	err := g.Wait()
	s.logger.Info("Graceful shutdown completed")
	return err
}
