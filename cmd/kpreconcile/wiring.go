package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // 纯 Go SQLite 驱动，注册为 "sqlite"，与迁移工具共用

	"github.com/BaSui01/kpreconcile/config"
	"github.com/BaSui01/kpreconcile/internal/cache"
	"github.com/BaSui01/kpreconcile/internal/circuitbreaker"
	"github.com/BaSui01/kpreconcile/internal/database"
	"github.com/BaSui01/kpreconcile/internal/metrics"
	"github.com/BaSui01/kpreconcile/internal/tlsutil"
	"github.com/BaSui01/kpreconcile/pipeline"
	"github.com/BaSui01/kpreconcile/reconcile"
	"github.com/BaSui01/kpreconcile/sources"
)

// =============================================================================
// 🔌 组件装配
// =============================================================================

// components serve 与 run 共用的依赖集合
type components struct {
	pool      *database.PoolManager
	cache     *cache.Manager
	store     pipeline.Store
	summaries reconcile.SummaryStore
	status    *reconcile.StatusReconciler
	sync      *reconcile.SyncReconciler
	env       pipeline.Environment
}

// buildComponents 按配置装配存储、数据源与协调器
func buildComponents(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*components, error) {
	env, err := pipeline.ParseEnvironment(cfg.Reconciler.Environment)
	if err != nil {
		return nil, err
	}

	statusClient, err := tlsutil.SourceHTTPClient(cfg.StatusSource.Timeout, cfg.StatusSource.CAFile)
	if err != nil {
		return nil, fmt.Errorf("status source tls: %w", err)
	}
	activityClient, err := tlsutil.SourceHTTPClient(cfg.ActivitySource.Timeout, cfg.ActivitySource.CAFile)
	if err != nil {
		return nil, fmt.Errorf("activity source tls: %w", err)
	}

	pool, err := openDatabase(cfg.Database, collector, logger)
	if err != nil {
		return nil, err
	}

	c := &components{
		pool:      pool,
		store:     pipeline.NewGormStore(pool, logger),
		summaries: reconcile.NewMemorySummaryStore(),
		env:       env,
	}

	if cfg.Redis.Enabled {
		mgr, err := cache.NewManager(cache.Config{
			Addr:                cfg.Redis.Addr,
			Password:            cfg.Redis.Password,
			DB:                  cfg.Redis.DB,
			KeyPrefix:           cfg.Redis.KeyPrefix,
			DefaultTTL:          cfg.Redis.SummaryTTL,
			MaxRetries:          3,
			PoolSize:            cfg.Redis.PoolSize,
			MinIdleConns:        cfg.Redis.MinIdleConns,
			HealthCheckInterval: 30 * time.Second,
		}, logger)
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.cache = mgr
		c.summaries = reconcile.NewRedisSummaryStore(mgr, cfg.Redis.SummaryTTL)
	}

	opts := []reconcile.Option{
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(collector),
		reconcile.WithSummaryStore(c.summaries),
		reconcile.WithCycleTimeout(cfg.Reconciler.CycleTimeout),
		reconcile.WithRecipePrefix(cfg.Reconciler.RecipePrefix),
	}
	if c.cache != nil {
		opts = append(opts, reconcile.WithLease(c.cache, cfg.Reconciler.LeaseTTL))
	}

	statusSource := sources.NewSearchIndexSource(sources.SearchIndexConfig{
		BaseURL:          cfg.StatusSource.URL,
		Index:            cfg.StatusSource.Index,
		Username:         cfg.StatusSource.Username,
		Password:         cfg.StatusSource.Password,
		APIKey:           cfg.StatusSource.APIKey,
		PageSize:         cfg.StatusSource.PageSize,
		Timeout:          cfg.StatusSource.Timeout,
		MaxRetries:       cfg.StatusSource.MaxRetries,
		QPS:              cfg.StatusSource.QPS,
		Burst:            cfg.StatusSource.Burst,
		BreakerThreshold: cfg.StatusSource.BreakerThreshold,
		BreakerReset:     cfg.StatusSource.BreakerReset,
	}, logger,
		sources.WithSearchHTTPClient(statusClient),
		sources.WithSearchObserver(collector),
		sources.WithSearchBreakerHook(func(name string, from, to circuitbreaker.State) {
			collector.RecordBreakerState(name, from, to)
		}),
	)
	c.status = reconcile.NewStatusReconciler(c.store, statusSource, opts...)

	activitySource := sources.NewOrchestratorSource(sources.OrchestratorConfig{
		ProductionURL:  cfg.ActivitySource.ProductionURL,
		DevelopmentURL: cfg.ActivitySource.DevelopmentURL,
		ProjectKey:     cfg.ActivitySource.ProjectKey,
		APIKey:         cfg.ActivitySource.APIKey,
		Timeout:        cfg.ActivitySource.Timeout,
		MaxRetries:     cfg.ActivitySource.MaxRetries,
	}, logger,
		sources.WithOrchestratorHTTPClient(activityClient),
		sources.WithOrchestratorObserver(collector),
	)
	c.sync = reconcile.NewSyncReconciler(c.store, activitySource, env, opts...)

	return c, nil
}

// reconciler 按名称返回协调器
func (c *components) reconciler(name string) (reconcile.Reconciler, error) {
	switch name {
	case reconcile.StatusReconcilerName:
		return c.status, nil
	case reconcile.SyncReconcilerName:
		return c.sync, nil
	default:
		return nil, fmt.Errorf("unknown reconciler %q (expected %s or %s)",
			name, reconcile.StatusReconcilerName, reconcile.SyncReconcilerName)
	}
}

// Close 释放数据库与 Redis 连接
func (c *components) Close() error {
	var errs []error
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	if c.pool != nil {
		errs = append(errs, c.pool.Close())
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🗄️ 数据库
// =============================================================================

// openDatabase 根据配置打开数据库连接并交给 PoolManager 管理
func openDatabase(dbCfg config.DatabaseConfig, collector *metrics.Collector, logger *zap.Logger) (*database.PoolManager, error) {
	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN())
	case "mysql":
		dialector = mysql.Open(dbCfg.DSN())
	case "sqlite":
		dialector = &sqlite.Dialector{DriverName: "sqlite", DSN: dbCfg.DSN()}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite)", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = dbCfg.MaxOpenConns
	poolCfg.MaxIdleConns = dbCfg.MaxIdleConns
	poolCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	poolCfg.MaxTxRetries = dbCfg.MaxTxRetries

	var opts []database.PoolOption
	if collector != nil {
		opts = append(opts, database.WithStatsObserver(collector.DBStatsObserver(dbCfg.Driver)))
	}
	pool, err := database.NewPoolManager(db, poolCfg, logger, opts...)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connected", zap.String("driver", dbCfg.Driver))
	return pool, nil
}
