package main

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banyan-labs/lead-optimizer/internal/leads"
	"github.com/banyan-labs/lead-optimizer/internal/model"
	"github.com/banyan-labs/lead-optimizer/internal/store"
)

var (
	exportFormat string
	exportState  string
	exportTier   string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export enriched leads from the checkpoint store",
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

		enriched, err := st.List(ctx, store.Filter{
			State: model.LeadState(exportState),
			Tier:  model.Tier(exportTier),
		})
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOut != "" {
			f, ferr := os.Create(exportOut)
			if ferr != nil {
				return eris.Wrapf(ferr, "create %s", exportOut)
			}
			defer f.Close()
			out = f
		}

		switch exportFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(enriched); err != nil {
				return eris.Wrap(err, "encode export")
			}
		case "csv":
			products := make([]string, 0, len(cfg.Products))
			for name := range cfg.Products {
				products = append(products, name)
			}
			sort.Strings(products)
			if err := leads.WriteCSV(out, enriched, products); err != nil {
				return err
			}
		default:
			return eris.Errorf("unknown export format %q", exportFormat)
		}

		zap.L().Info("export complete",
			zap.Int("leads", len(enriched)),
			zap.String("format", exportFormat))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or json")
	exportCmd.Flags().StringVar(&exportState, "state", "", "filter by lead state (done, failed)")
	exportCmd.Flags().StringVar(&exportTier, "tier", "", "filter by tier (qualified, high_priority)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
