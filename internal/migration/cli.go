package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI renders migrator operations as human-readable command output.
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI creates a CLI that writes to stdout.
func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

// SetOutput redirects CLI messages, mainly for tests.
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.output, format, args...)
}

// requireClean refuses to move a dirty schema; the operator has to repair it and force a version first.
func (c *CLI) requireClean(ctx context.Context) (*MigrationInfo, error) {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return nil, err
	}
	if info.Dirty {
		return nil, fmt.Errorf("schema is dirty at version %d, run 'migrate force <version>' after fixing it manually", info.CurrentVersion)
	}
	return info, nil
}

// finish prints the version reached after an operation.
func (c *CLI) finish(ctx context.Context, label string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("%s. Current version: %d\n", label, info.CurrentVersion)
	return nil
}

// RunUp applies pending migrations.
func (c *CLI) RunUp(ctx context.Context) error {
	before, err := c.requireClean(ctx)
	if err != nil {
		return err
	}
	if before.PendingMigrations == 0 {
		c.printf("Schema is up to date (version %d).\n", before.CurrentVersion)
		return nil
	}

	c.printf("Applying %d pending migration(s)...\n", before.PendingMigrations)
	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return c.finish(ctx, "Migrations complete")
}

// RunDown rolls back the most recent migration.
func (c *CLI) RunDown(ctx context.Context) error {
	before, err := c.requireClean(ctx)
	if err != nil {
		return err
	}
	if before.CurrentVersion == 0 {
		c.printf("Nothing to roll back.\n")
		return nil
	}

	c.printf("Rolling back version %d...\n", before.CurrentVersion)
	if err := c.migrator.Down(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return c.finish(ctx, "Rollback complete")
}

// RunDownAll rolls back every applied migration.
func (c *CLI) RunDownAll(ctx context.Context) error {
	if _, err := c.requireClean(ctx); err != nil {
		return err
	}
	c.printf("Rolling back all migrations...\n")
	if err := c.migrator.DownAll(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	c.printf("All migrations rolled back.\n")
	return nil
}

// RunReset drops the schema through the down migrations and rebuilds it.
func (c *CLI) RunReset(ctx context.Context) error {
	if _, err := c.requireClean(ctx); err != nil {
		return err
	}
	c.printf("Resetting schema: rolling back all migrations...\n")
	if err := c.migrator.DownAll(ctx); err != nil {
		return fmt.Errorf("reset rollback failed: %w", err)
	}
	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("reset re-apply failed: %w", err)
	}
	return c.finish(ctx, "Reset complete")
}

// RunSteps applies (n > 0) or rolls back (n < 0) n migrations.
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n == 0 {
		return fmt.Errorf("steps must be non-zero")
	}
	if _, err := c.requireClean(ctx); err != nil {
		return err
	}
	if n > 0 {
		c.printf("Applying %d migration(s)...\n", n)
	} else {
		c.printf("Rolling back %d migration(s)...\n", -n)
	}
	if err := c.migrator.Steps(ctx, n); err != nil {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	return c.finish(ctx, "Complete")
}

// RunGoto migrates up or down to version.
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	if _, err := c.requireClean(ctx); err != nil {
		return err
	}
	c.printf("Migrating to version %d...\n", version)
	if err := c.migrator.Goto(ctx, version); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return c.finish(ctx, "Migration complete")
}

// RunForce records version as applied and clears the dirty flag without running SQL.
func (c *CLI) RunForce(ctx context.Context, version int) error {
	c.printf("Forcing version to %d...\n", version)
	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}
	c.printf("Version forced to %d\n", version)
	return nil
}

// RunVersion prints the current schema version.
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	switch {
	case version == 0 && !dirty:
		c.printf("No migrations applied yet.\n")
	case dirty:
		c.printf("Current version: %d (dirty)\n", version)
	default:
		c.printf("Current version: %d\n", version)
	}
	return nil
}

// RunStatus prints one row per known migration followed by totals.
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		c.printf("No migrations found.\n")
		return nil
	}

	tw := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, statusLabel(s))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func statusLabel(s MigrationStatus) string {
	switch {
	case s.Dirty:
		return "Dirty"
	case s.Applied:
		return "Applied"
	default:
		return "Pending"
	}
}

// RunInfo prints the migration summary.
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}

	tw := tabwriter.NewWriter(c.output, 0, 0, 1, ' ', 0)
	fmt.Fprintln(tw, "Migration Information:")
	fmt.Fprintf(tw, "  Current Version:\t%d\n", info.CurrentVersion)
	fmt.Fprintf(tw, "  Dirty:\t%v\n", info.Dirty)
	fmt.Fprintf(tw, "  Total Migrations:\t%d\n", info.TotalMigrations)
	fmt.Fprintf(tw, "  Applied Migrations:\t%d\n", info.AppliedMigrations)
	fmt.Fprintf(tw, "  Pending Migrations:\t%d\n", info.PendingMigrations)
	return tw.Flush()
}
