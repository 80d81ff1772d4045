package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/YashRaj5/insurance-nlp/internal/config"
	"github.com/YashRaj5/insurance-nlp/internal/dataset"
	"github.com/YashRaj5/insurance-nlp/internal/handoff"
	"github.com/YashRaj5/insurance-nlp/internal/hub"
	"github.com/YashRaj5/insurance-nlp/internal/labels"
	"github.com/YashRaj5/insurance-nlp/internal/metrics"
	"github.com/YashRaj5/insurance-nlp/internal/model"
	"github.com/YashRaj5/insurance-nlp/internal/storage"
	"github.com/YashRaj5/insurance-nlp/internal/tokenize"
)

const (
	colText    = "text"
	colLabel   = "label"
	trainSplit = "train"
)

// Pipeline loads the published dataset, tokenizes it and prepares a
// sequence-classification config sized to its label vocabulary.
type Pipeline struct {
	cfg       config.Config
	mirror    storage.Mirror
	models    *hub.ModelClient
	submitter *handoff.Submitter // nil disables the trainer handoff
	metrics   *metrics.Metrics
	logger    *zap.Logger
	runID     string
}

// Result summarises a successful run.
type Result struct {
	RunID     string
	Rows      map[string]int
	SeqLength map[string]int // longest padded sequence per split
	NumLabels int
	Label2ID  map[string]int
	ID2Label  map[int]string
	Config    *model.ClassifierConfig
	Tokenized map[string]*tokenize.Tokenized
	OutputDir string
	Job       string
}

// Run executes every step in order and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     p.runID,
		SeqLength: map[string]int{},
		Tokenized: map[string]*tokenize.Tokenized{},
		OutputDir: p.cfg.Model.OutputDir,
	}
	log := p.logger.With(zap.String("run_id", p.runID))

	var d *dataset.Dict
	err := p.metrics.Step("fetch", func() error {
		var err error
		d, err = storage.Fetch(ctx, p.mirror, p.cfg.Scratch.ModelPrep)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Rows = d.NumRows()
	for split, n := range res.Rows {
		p.metrics.SetRows(split, n)
	}
	log.Info("loaded dataset", zap.String("main_path", p.mirror.String()), zap.Any("rows", res.Rows))

	vocab, err := labelVocabulary(d)
	if err != nil {
		return nil, err
	}
	res.NumLabels = vocab.NumClasses()
	res.Label2ID = vocab.Label2ID()
	res.ID2Label = vocab.ID2Label()
	p.metrics.SetLabels(res.NumLabels)

	var tk *tokenize.Tokenizer
	err = p.metrics.Step("tokenizer", func() error {
		var err error
		tk, err = tokenize.Pretrained(ctx, p.models, p.cfg.Model.Base, p.cfg.Model.CacheDir,
			tokenize.Options{MaxLength: p.cfg.Model.MaxLength})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build tokenizer for %s: %w", p.cfg.Model.Base, err)
	}

	err = p.metrics.Step("tokenize", func() error {
		for _, s := range d.Splits() {
			t, err := tokenize.TokenizeSplit(tk, s, colText, p.cfg.Dataset.BatchSize)
			if err != nil {
				return err
			}
			res.Tokenized[s.Name()] = t
			for _, ids := range t.InputIDs {
				res.SeqLength[s.Name()] = max(res.SeqLength[s.Name()], len(ids))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize: %w", err)
	}
	log.Info("tokenized dataset", zap.Any("max_seq_length", res.SeqLength), zap.Int("max_length", tk.MaxLength()))

	err = p.metrics.Step("model_config", func() error {
		base, err := model.FetchBaseConfig(ctx, p.models, p.cfg.Model.Base, p.cfg.Model.CacheDir)
		if err != nil {
			return err
		}
		cfg, err := model.ForSequenceClassification(base, p.cfg.Model.Base, vocab, p.cfg.Model.Seed)
		if err != nil {
			return err
		}
		if err := cfg.Validate(vocab.NumClasses()); err != nil {
			return err
		}
		res.Config = cfg
		return cfg.Save(p.cfg.Model.OutputDir)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare classifier config: %w", err)
	}
	log.Info("saved classifier config",
		zap.String("architecture", res.Config.Architecture()),
		zap.Int("num_labels", res.NumLabels),
		zap.String("output_dir", p.cfg.Model.OutputDir))

	if p.submitter != nil {
		err = p.metrics.Step("handoff", func() error {
			var err error
			res.Job, err = p.submitter.Submit(ctx, handoff.Request{
				RunID:           p.runID,
				DatasetPath:     p.cfg.MainPath,
				ModelConfigPath: p.cfg.Model.OutputDir,
				BaseModel:       p.cfg.Model.Base,
				NumLabels:       res.NumLabels,
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to hand off to trainer: %w", err)
		}
	}

	p.metrics.MarkSuccess()
	return res, nil
}

// labelVocabulary returns the train split's label feature and checks that
// every other split was encoded with the same one.
func labelVocabulary(d *dataset.Dict) (*labels.ClassLabel, error) {
	train, err := d.MustSplit(trainSplit)
	if err != nil {
		return nil, err
	}
	vocab, err := train.Feature(colLabel)
	if err != nil {
		return nil, err
	}
	if vocab == nil {
		return nil, fmt.Errorf("column %q of split %q is not a class label", colLabel, trainSplit)
	}
	for _, s := range d.Splits() {
		f, err := s.Feature(colLabel)
		if err != nil {
			return nil, err
		}
		if f == nil || !f.Equal(vocab) {
			return nil, fmt.Errorf("split %q uses a different label vocabulary than %q", s.Name(), trainSplit)
		}
	}
	return vocab, nil
}
