package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/YashRaj5/insurance-nlp/internal/cleaning"
	"github.com/YashRaj5/insurance-nlp/internal/config"
	"github.com/YashRaj5/insurance-nlp/internal/dataset"
	"github.com/YashRaj5/insurance-nlp/internal/hub"
	"github.com/YashRaj5/insurance-nlp/internal/labels"
	"github.com/YashRaj5/insurance-nlp/internal/metrics"
	"github.com/YashRaj5/insurance-nlp/internal/profile"
	"github.com/YashRaj5/insurance-nlp/internal/storage"
	"github.com/YashRaj5/insurance-nlp/internal/table"
)

// Raw and cleaned column names.
const (
	colIndex    = "index"
	colQuestion = "question_en"
	colTopic    = "topic_en"
	colText     = "text"
	colLabel    = "label"

	trainSplit = "train"
	testSplit  = "test"

	profileFile = "profile.xlsx"
)

// Pipeline fetches, cleans and publishes the insurance QA dataset.
type Pipeline struct {
	cfg      config.Config
	datasets *hub.DatasetClient
	mirror   storage.Mirror
	table    *table.Writer // nil skips the managed table
	metrics  *metrics.Metrics
	logger   *zap.Logger
	runID    string
}

// Result summarises a successful run.
type Result struct {
	RunID       string
	Rows        map[string]int
	Labels      []string
	ProfilePath string
	TableRows   int
}

// Run executes every step in order and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: p.runID}
	log := p.logger.With(zap.String("run_id", p.runID))

	var raw *dataset.Dict
	err := p.metrics.Step("fetch", func() error {
		var err error
		raw, err = p.datasets.LoadDataset(ctx, p.cfg.Dataset.Name, p.cfg.Dataset.Config, p.cfg.Dataset.Splits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", p.cfg.Dataset.Name, err)
	}
	log.Info("fetched dataset", zap.String("dataset", p.cfg.Dataset.Name), zap.Any("rows", raw.NumRows()))

	// cleaning rewrites columns in place; the managed table gets the raw records
	clean := raw.Clone()

	var vocab *labels.ClassLabel
	err = p.metrics.Step("clean", func() error {
		var err error
		vocab, err = restructure(clean, p.cfg.Dataset.BatchSize)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Labels = vocab.Names()
	res.Rows = clean.NumRows()
	p.metrics.SetLabels(vocab.NumClasses())
	for split, n := range res.Rows {
		p.metrics.SetRows(split, n)
	}
	log.Info("cleaned dataset", zap.Int("labels", vocab.NumClasses()), zap.Strings("label_names", res.Labels))

	err = p.metrics.Step("publish", func() error {
		return storage.Publish(ctx, clean, p.cfg.Scratch.DataPrep, p.mirror, p.runID)
	})
	if err != nil {
		return nil, err
	}
	log.Info("published dataset", zap.String("scratch", p.cfg.Scratch.DataPrep), zap.String("main_path", p.mirror.String()))

	err = p.metrics.Step("profile", func() error {
		profiles, err := profile.BuildAll(clean, colLabel, colText)
		if err != nil {
			return err
		}
		for _, pr := range profiles {
			if len(pr.Labels) > 0 {
				log.Info("label profile",
					zap.String("split", pr.Split),
					zap.Int("rows", pr.NumRows),
					zap.String("most_frequent", pr.Labels[0].Label),
					zap.String("least_frequent", pr.Labels[len(pr.Labels)-1].Label))
			}
		}
		res.ProfilePath = filepath.Join(p.cfg.Scratch.DataPrep, profileFile)
		return profile.WriteXLSX(res.ProfilePath, profiles)
	})
	if err != nil {
		// the report is informational
		log.Warn("failed to write data profile", zap.Error(err))
		res.ProfilePath = ""
	}

	if p.table == nil {
		log.Warn("table.dsn is not set, skipping managed table", zap.String("table", p.cfg.Table.Name))
	} else if rawTest, ok := raw.Split(testSplit); !ok {
		log.Warn("no test split fetched, skipping managed table", zap.String("table", p.cfg.Table.Name))
	} else {
		err = p.metrics.Step("table", func() error {
			n, err := p.table.Overwrite(ctx, p.cfg.Table.Name, rawTest)
			res.TableRows = n
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to write table %s: %w", p.cfg.Table.Name, err)
		}
		p.metrics.SetTableRows(p.cfg.Table.Name, res.TableRows)
	}

	p.metrics.MarkSuccess()
	return res, nil
}

// restructure cleans question text, drops the index, renames columns to
// text/label and encodes labels with a vocabulary taken from the train split.
func restructure(d *dataset.Dict, batchSize int) (*labels.ClassLabel, error) {
	if err := cleaning.Apply(d, colQuestion, batchSize); err != nil {
		return nil, fmt.Errorf("failed to clean %s: %w", colQuestion, err)
	}
	if err := d.RemoveColumns(colIndex); err != nil {
		return nil, err
	}
	if err := d.RenameColumns(map[string]string{colQuestion: colText, colTopic: colLabel}); err != nil {
		return nil, err
	}

	train, err := d.MustSplit(trainSplit)
	if err != nil {
		return nil, err
	}
	trainLabels, err := train.Strings(colLabel)
	if err != nil {
		return nil, err
	}
	vocab := labels.FromValues(trainLabels)
	if err := d.CastColumn(colLabel, vocab); err != nil {
		return nil, fmt.Errorf("failed to encode labels: %w", err)
	}
	return vocab, nil
}

// pushMetrics flushes metrics when a Pushgateway is configured. Failures are logged only.
func pushMetrics(ctx context.Context, m *metrics.Metrics, cfg config.Config, runID string, logger *zap.Logger) {
	if cfg.Metrics.Pushgateway == "" {
		return
	}
	if err := m.Push(ctx, cfg.Metrics.Pushgateway, cfg.Metrics.Job, runID); err != nil {
		logger.Warn("failed to push metrics", zap.Error(err))
	}
}

func hubConfig(cfg config.Config, baseURL string) hub.Config {
	hc := hub.DefaultConfig(baseURL)
	hc.Token = cfg.Hub.Token
	hc.Timeout = cfg.Hub.Timeout
	hc.RetryCount = cfg.Hub.RetryCount
	return hc
}
