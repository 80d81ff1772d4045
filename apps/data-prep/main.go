// Command data-prep downloads the insurance QA dataset, cleans it, publishes
// it to main_path and writes the raw test split to a managed table.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YashRaj5/insurance-nlp/internal/config"
	"github.com/YashRaj5/insurance-nlp/internal/hub"
	"github.com/YashRaj5/insurance-nlp/internal/metrics"
	"github.com/YashRaj5/insurance-nlp/internal/storage"
	"github.com/YashRaj5/insurance-nlp/internal/table"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "data-prep",
		Short: "Fetch, clean and publish the insurance QA dataset",
		Long: `data-prep downloads j0selit0/insurance-qa-en, lowercases and collapses
spaces in every question, encodes topics as class labels, saves the result to
local scratch space and copies it to main_path. The raw test split is written
to the managed "questions" table.

Every setting can be overridden with INSURANCE_QA_* environment variables,
e.g. INSURANCE_QA_MAIN_PATH=s3://ml-data/insuranceqa.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync() // Flushes buffer, if any
			}()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				logger.Error("failed to load config", zap.Error(err))
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, cleanup, err := newPipeline(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to initialise pipeline", zap.Error(err))
				return err
			}
			defer cleanup()

			start := time.Now()
			res, err := p.Run(ctx)
			pushMetrics(context.WithoutCancel(ctx), p.metrics, cfg, p.runID, logger)
			if err != nil {
				logger.Error("data preparation failed", zap.String("run_id", p.runID), zap.Error(err))
				return err
			}
			logger.Info("data preparation complete",
				zap.String("run_id", res.RunID),
				zap.Any("rows", res.Rows),
				zap.Int("labels", len(res.Labels)),
				zap.String("profile", res.ProfilePath),
				zap.Int("table_rows", res.TableRows),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable development logging")
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Pipeline, func(), error) {
	mirror, err := storage.NewMirror(ctx, cfg.MainPath, storage.S3Options{
		Region:   cfg.S3.Region,
		Endpoint: cfg.S3.Endpoint,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		datasets: hub.NewDatasetClient(hubConfig(cfg, cfg.Hub.DatasetsURL), logger),
		mirror:   mirror,
		metrics:  metrics.New("data_prep"),
		logger:   logger,
		runID:    uuid.NewString(),
	}

	cleanup := func() {}
	if cfg.Table.DSN != "" {
		w, err := table.Open(ctx, cfg.Table.Driver, cfg.Table.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		p.table = w
		cleanup = func() { w.Close() }
	}
	return p, cleanup, nil
}
