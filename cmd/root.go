package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banyan-labs/lead-optimizer/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lead-optimizer",
	Short: "Lead classification and scoring engine",
	Long:  "Enriches CRM lead batches: verifies nonprofit status against the IRS rolls, classifies organizations, and scores product fit with resumable checkpointing.",
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
