package main

import (
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banyan-labs/lead-optimizer/internal/classify"
	"github.com/banyan-labs/lead-optimizer/internal/leads"
	"github.com/banyan-labs/lead-optimizer/internal/nonprofit"
	"github.com/banyan-labs/lead-optimizer/internal/pipeline"
	"github.com/banyan-labs/lead-optimizer/internal/resilience"
	"github.com/banyan-labs/lead-optimizer/internal/scorer"
	"github.com/banyan-labs/lead-optimizer/internal/scrape"
	"github.com/banyan-labs/lead-optimizer/internal/store"
	"github.com/banyan-labs/lead-optimizer/pkg/propublica"
)

var runInput string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich a batch of leads from a CSV export",
	RunE: func(cmd *cobra.Command, args []string) error {
		// SIGINT lets in-flight leads finish and checkpoint before exit.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		batch, err := leads.ReadFile(runInput)
		if err != nil {
			return err
		}
		zap.L().Info("loaded leads", zap.String("file", runInput), zap.Int("count", len(batch)))

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		registry := propublica.NewClient(
			propublica.WithBaseURL(cfg.Registry.BaseURL),
			propublica.WithRateLimit(cfg.Registry.RatePerSecond, 2),
			propublica.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Registry.TimeoutSecs) * time.Second,
			}),
		)

		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = cfg.Pipeline.MaxAttempts
		resolver := nonprofit.NewResolver(registry, cfg.Resolver, retry,
			nonprofit.WithDetailFetch(cfg.Registry.FetchDetail))

		tables := classify.Tables(nil)
		if cfg.Classify.TablesPath != "" {
			tables, err = classify.LoadTables(cfg.Classify.TablesPath)
			if err != nil {
				return err
			}
		}
		classifier := classify.NewClassifier(tables, cfg.Classify.MinScore)

		fetcher := scrape.NewHTTPFetcher(
			scrape.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Scrape.TimeoutSecs) * time.Second,
			}),
			scrape.WithUserAgent(cfg.Scrape.UserAgent),
			scrape.WithMaxBody(cfg.Scrape.MaxBodyBytes),
			scrape.WithRateLimit(cfg.Scrape.RatePerSecond, 2),
		)

		p := pipeline.New(cfg.Pipeline, st, resolver, classifier, scorer.NewScorer(cfg.Products), fetcher)

		summary, err := p.Run(ctx, batch)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("batch finished",
			zap.Int("total", summary.Total),
			zap.Int("processed", summary.Processed),
			zap.Int("resumed", summary.Resumed),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
		)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "path to lead CSV export (required)")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
