// Command model-prep loads the published insurance QA dataset, tokenizes it
// for the base encoder and writes a classifier config sized to its labels.
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
	"k8s.io/client-go/kubernetes"

	"github.com/YashRaj5/insurance-nlp/internal/config"
	"github.com/YashRaj5/insurance-nlp/internal/handoff"
	"github.com/YashRaj5/insurance-nlp/internal/hub"
	"github.com/YashRaj5/insurance-nlp/internal/metrics"
	"github.com/YashRaj5/insurance-nlp/internal/storage"
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
		Use:   "model-prep",
		Short: "Tokenize the published dataset and size a classifier to its labels",
		Long: `model-prep copies the dataset published by data-prep from main_path into
local scratch space, tokenizes every split with the base model's WordPiece
vocabulary and writes config.json, label_map.json and an initialised
classification head to model.output_dir.

With handoff.enabled the run is passed to a trainer Job on Kubernetes.`,
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

			p, err := newPipeline(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to initialise pipeline", zap.Error(err))
				return err
			}

			start := time.Now()
			res, err := p.Run(ctx)
			pushMetrics(context.WithoutCancel(ctx), p, cfg)
			if err != nil {
				logger.Error("model preparation failed", zap.String("run_id", p.runID), zap.Error(err))
				return err
			}
			logger.Info("model preparation complete",
				zap.String("run_id", res.RunID),
				zap.Any("rows", res.Rows),
				zap.Int("num_labels", res.NumLabels),
				zap.Any("id2label", res.ID2Label),
				zap.String("output_dir", res.OutputDir),
				zap.String("job", res.Job),
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

func newPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Pipeline, error) {
	mirror, err := storage.NewMirror(ctx, cfg.MainPath, storage.S3Options{
		Region:   cfg.S3.Region,
		Endpoint: cfg.S3.Endpoint,
	}, logger)
	if err != nil {
		return nil, err
	}

	hc := hub.DefaultConfig(cfg.Hub.ModelsURL)
	hc.Token = cfg.Hub.Token
	hc.Timeout = cfg.Hub.Timeout
	hc.RetryCount = cfg.Hub.RetryCount

	p := &Pipeline{
		cfg:     cfg,
		mirror:  mirror,
		models:  hub.NewModelClient(hc, logger),
		metrics: metrics.New("model_prep"),
		logger:  logger,
		runID:   uuid.NewString(),
	}

	if cfg.Handoff.Enabled {
		h := cfg.Handoff
		var client kubernetes.Interface
		if !h.DryRun {
			if client, err = handoff.NewClientset(h.InCluster, h.Kubeconfig); err != nil {
				return nil, err
			}
		}
		p.submitter = handoff.NewSubmitter(client, handoff.Options{
			Namespace:    h.Namespace,
			Image:        h.Image,
			NodeSelector: h.NodeSelector,
			GPUResource:  h.GPUResource,
			GPUCount:     h.GPUCount,
			TTLSeconds:   h.TTLSeconds,
			DryRun:       h.DryRun,
		}, logger)
	}
	return p, nil
}

func pushMetrics(ctx context.Context, p *Pipeline, cfg config.Config) {
	if cfg.Metrics.Pushgateway == "" {
		return
	}
	if err := p.metrics.Push(ctx, cfg.Metrics.Pushgateway, cfg.Metrics.Job, p.runID); err != nil {
		p.logger.Warn("failed to push metrics", zap.Error(err))
	}
}
