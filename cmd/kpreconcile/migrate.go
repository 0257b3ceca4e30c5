package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// migrateFlags 迁移子命令的公共参数
type migrateFlags struct {
	configPath string
	dbType     string
	dbURL      string
	verbose    bool
}

func (f *migrateFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.dbType, "db-type", "", "Database type (postgres, mysql, sqlite)")
	fs.StringVar(&f.dbURL, "db-url", "", "Database connection URL")
	fs.BoolVar(&f.verbose, "verbose", false, "Log migration driver output")
}

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	if subcommand == "help" || subcommand == "-h" || subcommand == "--help" {
		printMigrateUsage()
		return
	}

	fs := flag.NewFlagSet("migrate "+subcommand, flag.ExitOnError)
	var mf migrateFlags
	mf.register(fs)
	all := fs.Bool("all", false, "Rollback all migrations (down only)")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		os.Exit(1)
	}

	action, err := migrateAction(subcommand, fs.Args(), *all)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		printMigrateUsage()
		os.Exit(1)
	}

	migrator, err := createMigrator(mf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := action(ctx, migration.NewCLI(migrator)); err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", subcommand, err)
		migrator.Close()
		os.Exit(1)
	}
}

// cliAction 对 migration.CLI 的一次调用
type cliAction func(ctx context.Context, c *migration.CLI) error

// migrateAction 把子命令及其位置参数解析为对 CLI 的一次调用
func migrateAction(subcommand string, positional []string, all bool) (cliAction, error) {
	switch subcommand {
	case "up":
		return func(ctx context.Context, c *migration.CLI) error { return c.RunUp(ctx) }, nil
	case "down":
		if all {
			return func(ctx context.Context, c *migration.CLI) error { return c.RunDownAll(ctx) }, nil
		}
		return func(ctx context.Context, c *migration.CLI) error { return c.RunDown(ctx) }, nil
	case "reset":
		return func(ctx context.Context, c *migration.CLI) error { return c.RunReset(ctx) }, nil
	case "status":
		return func(ctx context.Context, c *migration.CLI) error { return c.RunStatus(ctx) }, nil
	case "version":
		return func(ctx context.Context, c *migration.CLI) error { return c.RunVersion(ctx) }, nil
	case "info":
		return func(ctx context.Context, c *migration.CLI) error { return c.RunInfo(ctx) }, nil
	case "steps":
		n, err := positionalInt(positional, "steps")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *migration.CLI) error { return c.RunSteps(ctx, n) }, nil
	case "goto":
		n, err := positionalInt(positional, "goto")
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("goto version must be non-negative, got %d", n)
		}
		return func(ctx context.Context, c *migration.CLI) error { return c.RunGoto(ctx, uint(n)) }, nil
	case "force":
		n, err := positionalInt(positional, "force")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *migration.CLI) error { return c.RunForce(ctx, n) }, nil
	default:
		return nil, fmt.Errorf("unknown migrate subcommand: %s", subcommand)
	}
}

func positionalInt(positional []string, subcommand string) (int, error) {
	if len(positional) < 1 {
		return 0, fmt.Errorf("%s requires a numeric argument", subcommand)
	}
	n, err := strconv.Atoi(positional[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s argument %q: %w", subcommand, positional[0], err)
	}
	return n, nil
}

// createMigrator 优先使用 --db-type/--db-url，否则从配置文件与环境变量加载
func createMigrator(mf migrateFlags) (*migration.DefaultMigrator, error) {
	logger := zap.NewNop()
	if mf.verbose {
		logger, _ = zap.NewDevelopment()
	}

	if mf.dbType != "" && mf.dbURL != "" {
		return migration.NewMigratorFromURL(mf.dbType, mf.dbURL, logger)
	}

	cfg, _, err := loadConfig(mf.configPath)
	if err != nil {
		return nil, err
	}
	if mf.dbType != "" {
		cfg.Database.Driver = mf.dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  kpreconcile migrate <subcommand> [options] [argument]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration (--all rolls back everything)
  reset       Rollback all migrations and re-apply them
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  status      Show migration status
  version     Show current migration version
  info        Show migration summary
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)
  --verbose           Log migration driver output

Examples:
  kpreconcile migrate up --config /etc/kpreconcile/config.yaml
  kpreconcile migrate down --all
  kpreconcile migrate goto 1
  kpreconcile migrate steps -- -1
  kpreconcile migrate up --db-type sqlite --db-url "file:/var/lib/kpreconcile.db?_pragma=foreign_keys(1)"`)
}
