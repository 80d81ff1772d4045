// Package model derives a sequence-classification configuration and a freshly
// initialised classification head from a pretrained encoder's config.json.
// It does not train anything.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/YashRaj5/insurance-nlp/internal/hub"
	"github.com/YashRaj5/insurance-nlp/internal/labels"
)

const (
	ConfigFile     = "config.json"
	LabelMapFile   = "label_map.json"
	ClassifierFile = "classifier.json"

	defaultInitializerRange = 0.02
)

var (
	// ErrLabelCountMismatch is returned when the head, the config and the label vocabulary disagree.
	ErrLabelCountMismatch = errors.New("label count mismatch")
	// ErrNoHiddenSize is returned when the base config carries neither dim nor hidden_size.
	ErrNoHiddenSize = errors.New("base config has no hidden size")
)

// BaseConfig is a pretrained model's config.json, kept as a raw map so
// unknown keys survive the round trip.
type BaseConfig map[string]any

// LoadBaseConfig reads a config.json from disk.
func LoadBaseConfig(path string) (BaseConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var cfg BaseConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return cfg, nil
}

// FetchBaseConfig downloads repo's config.json into cacheDir, reusing a cached copy.
func FetchBaseConfig(ctx context.Context, client *hub.ModelClient, repo, cacheDir string) (BaseConfig, error) {
	path := filepath.Join(cacheDir, strings.ReplaceAll(repo, "/", "--"), ConfigFile)
	if _, err := os.Stat(path); err != nil {
		if err := client.Download(ctx, repo, ConfigFile, path); err != nil {
			return nil, err
		}
	}
	return LoadBaseConfig(path)
}

// ModelType returns the model_type key, or "" if absent.
func (c BaseConfig) ModelType() string {
	s, _ := c["model_type"].(string)
	return s
}

// HiddenSize returns dim (DistilBERT) or hidden_size (BERT and most others).
func (c BaseConfig) HiddenSize() (int, error) {
	for _, key := range []string{"dim", "hidden_size"} {
		if v, ok := c[key].(float64); ok && v > 0 {
			return int(v), nil
		}
	}
	return 0, ErrNoHiddenSize
}

// InitializerRange returns the std of the weight initialiser.
func (c BaseConfig) InitializerRange() float64 {
	if v, ok := c["initializer_range"].(float64); ok && v > 0 {
		return v
	}
	return defaultInitializerRange
}

// architecturePrefix derives e.g. "DistilBert" from ["DistilBertForMaskedLM"].
func (c BaseConfig) architecturePrefix() string {
	if archs, ok := c["architectures"].([]any); ok && len(archs) > 0 {
		if a, ok := archs[0].(string); ok {
			if i := strings.Index(a, "For"); i > 0 {
				return a[:i]
			}
			return strings.TrimSuffix(a, "Model")
		}
	}
	switch c.ModelType() {
	case "distilbert":
		return "DistilBert"
	case "bert":
		return "Bert"
	case "roberta":
		return "Roberta"
	}
	return "Auto"
}

// ClassifierConfig is the config of a sequence classifier built on a base encoder.
type ClassifierConfig struct {
	raw      map[string]any
	labels   *labels.ClassLabel
	Head     *Head
	BaseName string
}

// ForSequenceClassification sizes a classification config and head to the
// label vocabulary. Weights are drawn N(0, initializer_range) from seed.
func ForSequenceClassification(base BaseConfig, baseName string, vocab *labels.ClassLabel, seed uint64) (*ClassifierConfig, error) {
	if vocab.NumClasses() == 0 {
		return nil, fmt.Errorf("%w: empty label vocabulary", ErrLabelCountMismatch)
	}
	hidden, err := base.HiddenSize()
	if err != nil {
		return nil, err
	}

	raw := make(map[string]any, len(base)+4)
	for k, v := range base {
		raw[k] = v
	}
	raw["_name_or_path"] = baseName
	raw["architectures"] = []string{base.architecturePrefix() + "ForSequenceClassification"}
	raw["num_labels"] = vocab.NumClasses()
	raw["id2label"] = vocab.ID2LabelStrings()
	raw["label2id"] = vocab.Label2ID()
	raw["problem_type"] = "single_label_classification"

	head := NewHead(hidden, vocab.NumClasses(), base.ModelType() == "distilbert", base.InitializerRange(), seed)
	return &ClassifierConfig{raw: raw, labels: vocab, Head: head, BaseName: baseName}, nil
}

// NumLabels returns the configured label count.
func (c *ClassifierConfig) NumLabels() int {
	n, _ := c.raw["num_labels"].(int)
	return n
}

// Architecture returns the classifier architecture name.
func (c *ClassifierConfig) Architecture() string {
	archs, _ := c.raw["architectures"].([]string)
	if len(archs) == 0 {
		return ""
	}
	return archs[0]
}

// Labels returns the label vocabulary the config was sized to.
func (c *ClassifierConfig) Labels() *labels.ClassLabel { return c.labels }

// Get returns a raw config value.
func (c *ClassifierConfig) Get(key string) (any, bool) {
	v, ok := c.raw[key]
	return v, ok
}

// Validate checks that config, label maps and head all have numLabels entries.
func (c *ClassifierConfig) Validate(numLabels int) error {
	id2label, _ := c.raw["id2label"].(map[string]string)
	label2id, _ := c.raw["label2id"].(map[string]int)
	checks := []struct {
		what string
		n    int
	}{
		{"num_labels", c.NumLabels()},
		{"id2label", len(id2label)},
		{"label2id", len(label2id)},
		{"classifier rows", c.Head.NumLabels()},
	}
	for _, chk := range checks {
		if chk.n != numLabels {
			return fmt.Errorf("%w: %s has %d entries, vocabulary has %d", ErrLabelCountMismatch, chk.what, chk.n, numLabels)
		}
	}
	for i := 0; i < numLabels; i++ {
		name, ok := id2label[strconv.Itoa(i)]
		if !ok || label2id[name] != i {
			return fmt.Errorf("%w: id %d does not round-trip through id2label/label2id", ErrLabelCountMismatch, i)
		}
	}
	return nil
}

type labelMap struct {
	Label2ID map[string]int    `json:"label2id"`
	ID2Label map[string]string `json:"id2label"`
	Names    []string          `json:"names"`
}

// Save writes config.json, label_map.json and classifier.json into dir.
func (c *ClassifierConfig) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	files := []struct {
		name string
		v    any
	}{
		{ConfigFile, c.raw},
		{LabelMapFile, labelMap{Label2ID: c.labels.Label2ID(), ID2Label: c.labels.ID2LabelStrings(), Names: c.labels.Names()}},
		{ClassifierFile, c.Head},
	}
	for _, f := range files {
		b, err := json.MarshalIndent(f.v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), b, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}
