package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banyan-labs/lead-optimizer/internal/model"
	"github.com/banyan-labs/lead-optimizer/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint counts for the current batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		counts, err := st.Count(ctx)
		if err != nil {
			return err
		}

		total := 0
		for _, state := range []model.LeadState{model.LeadStateDone, model.LeadStateFailed} {
			fmt.Printf("%-8s %d\n", state, counts[state])
			total += counts[state]
		}
		fmt.Printf("%-8s %d\n", "total", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
