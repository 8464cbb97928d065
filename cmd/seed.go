package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/qc-app/internal/backend"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the database with demo data",
	Long: `Create demo sensors, notification rules, frame models, batches and
frames with fake data. Existing catalog entries are reused.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	addDBFlags(seedCmd)
	seedCmd.Flags().Int("batches", 5, "number of batches to create")
	seedCmd.Flags().Int("frames-per-batch", 8, "number of frames per batch")
	seedCmd.Flags().Float64("analyzed-share", 0.5, "fraction of frames given an expert visual analysis")
	seedCmd.Flags().Uint64("seed", 0, "random seed (0 picks one)")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	keys := map[string]string{
		"seed.batches":          "batches",
		"seed.frames_per_batch": "frames-per-batch",
		"seed.analyzed_share":   "analyzed-share",
		"seed.seed":             "seed",
	}
	for k, v := range dbFlagKeys {
		keys[k] = v
	}
	if err := bindFlags(cmd, keys); err != nil {
		return err
	}

	logger := GetLogger("seed")
	cfg := dbConfig(logger)

	db, err := backend.NewDB(&cfg)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return err
	}

	svc, err := backend.NewService(&backend.ServiceConfig{Logger: logger, DB: db})
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize service: %w", err), backend.CloseDB(db, logger))
	}

	report, err := backend.SeedDemoData(context.Background(), svc, backend.SeedOptions{
		Batches:        viper.GetInt("seed.batches"),
		FramesPerBatch: viper.GetInt("seed.frames_per_batch"),
		AnalyzedShare:  viper.GetFloat64("seed.analyzed_share"),
		Seed:           viper.GetUint64("seed.seed"),
	})
	if report != nil {
		logger.Info("demo data created",
			"sensors", report.Sensors,
			"rules", report.Rules,
			"models", report.Models,
			"batches", report.Batches,
			"frames", report.Frames,
			"analyses", report.Analyses,
		)
	}
	if err != nil {
		logger.Error("seeding failed", "error", err)
	}
	return errors.Join(err, backend.CloseDB(db, logger))
}
