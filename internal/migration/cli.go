package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI renders migrator operations as terminal output. The relayd migrate
// subcommand drives every schema change through it.
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI wraps a migrator with stdout output.
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

// reportVersion prints the schema version reached after an operation.
func (c *CLI) reportVersion(ctx context.Context, prefix string) error {
	version, _, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	c.printf("%s Current version: %d\n", prefix, version)
	return nil
}

// RunUp applies every pending migration.
func (c *CLI) RunUp(ctx context.Context) error {
	c.printf("Applying pending migrations...\n")
	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return c.reportVersion(ctx, "Migrations complete.")
}

// RunDown rolls back the most recent migration.
func (c *CLI) RunDown(ctx context.Context) error {
	c.printf("Reverting the most recent migration...\n")
	if err := c.migrator.Down(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return c.reportVersion(ctx, "Rollback complete.")
}

// RunDownAll rolls back every applied migration.
func (c *CLI) RunDownAll(ctx context.Context) error {
	c.printf("Reverting every applied migration...\n")
	if err := c.migrator.DownAll(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	c.printf("All migrations rolled back.\n")
	return nil
}

// RunSteps applies n migrations forward, or rolls back -n when n is
// negative.
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n > 0 {
		c.printf("Stepping forward %d migration(s)...\n", n)
	} else {
		c.printf("Stepping back %d migration(s)...\n", -n)
	}
	if err := c.migrator.Steps(ctx, n); err != nil {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	return c.reportVersion(ctx, "Steps complete.")
}

// RunGoto migrates the schema to an exact version in either direction.
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	c.printf("Moving schema to version %d...\n", version)
	if err := c.migrator.Goto(ctx, version); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return c.reportVersion(ctx, "Migration complete.")
}

// RunForce overwrites the recorded version without running any SQL. It is
// the operator escape hatch for a dirty schema after a failed migration.
func (c *CLI) RunForce(ctx context.Context, version int) error {
	c.printf("Forcing recorded version to %d...\n", version)
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
	if version == 0 {
		c.printf("No migrations applied yet.\n")
		return nil
	}

	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	c.printf("Current version: %d%s\n", version, suffix)
	return nil
}

// RunStatus prints one table row per known migration plus a summary line.
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
	fmt.Fprintln(tw, "-------\t----\t------")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, statusLabel(s))
	}
	tw.Flush()

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	c.printf("\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

// statusLabel resolves display precedence. Dirty wins over applied: a failed
// migration leaves its target version recorded but incomplete.
func statusLabel(s MigrationStatus) string {
	switch {
	case s.Dirty:
		return "Dirty"
	case s.Applied:
		return "Applied"
	}
	return "Pending"
}

// RunInfo prints the aggregate schema state.
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}

	c.printf("Migration Information:\n")
	c.printf("  Current Version:    %d\n", info.CurrentVersion)
	c.printf("  Dirty:              %v\n", info.Dirty)
	c.printf("  Total Migrations:   %d\n", info.TotalMigrations)
	c.printf("  Applied Migrations: %d\n", info.AppliedMigrations)
	c.printf("  Pending Migrations: %d\n", info.PendingMigrations)
	return nil
}
