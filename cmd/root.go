package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filmlens/scraper-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "scraper-cli",
	Short: "Ranked movie listing scraper",
	Long:  "Walks genre-ranked movie listings through rotating per-country proxies, validates and quality-scores each entry, persists with an audit trail and exports flat files.",
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
