package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/database"
)

var errUnknownMigrateCommand = errors.New("unknown migrate command")

// runMigrate opens the configured database, runs one schema command and
// writes the resulting migration status to out.
func runMigrate(ctx context.Context, command string, out io.Writer) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Read-only after the command

	return migrate(ctx, db, command, out)
}

// migrate runs command against db.
//
//   - status: list applied and pending migrations
//   - down: roll back the newest applied migration, then list
func migrate(ctx context.Context, db *database.DB, command string, out io.Writer) error {
	switch command {
	case "status":
	case "down":
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownMigrateCommand, command)
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, m := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.UTC().Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}
