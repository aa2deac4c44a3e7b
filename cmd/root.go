package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wanderset/places-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "places-cli",
	Short: "Points-of-interest ingestion pipeline",
	Long:  "Fetches places from the Google Places API over a city grid, deduplicates them against curated datasets, stages borderline matches for review, and publishes to the canonical place store.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
