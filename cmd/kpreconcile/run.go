package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/internal/metrics"
	"github.com/BaSui01/kpreconcile/internal/telemetry"
	"github.com/BaSui01/kpreconcile/reconcile"
)

// =============================================================================
// ▶️ run 命令：执行单次对账周期
// =============================================================================

// 退出码
const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

// runSummaryLimit 标准输出中保留的非成功条目数
const runSummaryLimit = 100

func runOnce(args []string) {
	if len(args) < 1 || args[0] == "" || args[0][0] == '-' {
		fmt.Fprintln(os.Stderr, "Usage: kpreconcile run <status|sync> [--config <path>] [--env <production|development>]")
		os.Exit(exitFailed)
	}
	name := args[0]

	fs := flag.NewFlagSet("run "+name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	env := fs.String("env", "", "Override reconciler environment (production or development)")
	_ = fs.Parse(args[1:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailed)
	}
	if *env != "" {
		cfg.Reconciler.Environment = *env
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
			os.Exit(exitFailed)
		}
	}

	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, logger,
		telemetry.WithEnvironment(cfg.Reconciler.Environment))
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	comps, err := buildComponents(cfg, metrics.NewCollector("kpreconcile", logger), logger)
	if err != nil {
		logger.Error("failed to build components", zap.Error(err))
		_ = logger.Sync()
		os.Exit(exitFailed)
	}

	code := func() int {
		defer func() {
			if err := comps.Close(); err != nil {
				logger.Warn("close components", zap.Error(err))
			}
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelProviders.ForceFlush(flushCtx)
			_ = otelProviders.Shutdown(flushCtx)
		}()

		rec, err := comps.reconciler(name)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFailed
		}

		summary, cycleErr := rec.RunCycle(ctx)
		if summary != nil {
			if err := writeSummary(os.Stdout, summary); err != nil {
				logger.Warn("write summary", zap.Error(err))
			}
		}
		return exitCode(summary, cycleErr)
	}()

	_ = logger.Sync()
	os.Exit(code)
}

// exitCode 周期级错误返回 1，存在失败条目返回 2
func exitCode(summary *reconcile.Summary, cycleErr error) int {
	if cycleErr != nil || summary == nil {
		return exitFailed
	}
	switch summary.CycleOutcome() {
	case reconcile.CycleOutcomeFailed:
		return exitFailed
	case reconcile.CycleOutcomePartial:
		return exitPartial
	default:
		return exitOK
	}
}

func writeSummary(w io.Writer, summary *reconcile.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary.Compact(runSummaryLimit))
}
