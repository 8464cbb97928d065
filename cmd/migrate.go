package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"procodus.dev/qc-app/internal/backend"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Run schema migrations, seed the lookup tables (batch statuses, mark
types, notification types) and report row counts.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	addDBFlags(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(cmd, dbFlagKeys); err != nil {
		return err
	}

	logger := GetLogger("migrate")
	cfg := dbConfig(logger)

	db, err := backend.NewDB(&cfg)
	if err != nil {
		logger.Error("migration failed", "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, diagErr := backend.Diagnose(ctx, db, logger)
	return errors.Join(diagErr, backend.CloseDB(db, logger))
}
