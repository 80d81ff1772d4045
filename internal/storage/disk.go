// Package storage persists cleaned datasets and moves them between local
// scratch space and the shared location named by main_path.
//
// On-disk layout of a saved dataset directory:
//
//	dataset_dict.json          {"splits": ["train", "test", "validation"]}
//	<split>/dataset_info.json  column order and features, row count
//	<split>/state.json         run id, creation time, fingerprint
//	<split>/data.parquet       the rows
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/YashRaj5/insurance-nlp/internal/dataset"
	"github.com/YashRaj5/insurance-nlp/internal/labels"
)

const (
	dictFile  = "dataset_dict.json"
	infoFile  = "dataset_info.json"
	stateFile = "state.json"
	dataFile  = "data.parquet"

	featureValue      = "Value"
	featureClassLabel = "ClassLabel"

	dtypeString = "string"
	dtypeInt64  = "int64"
)

// ErrNotADataset is returned when a directory lacks dataset_dict.json.
var ErrNotADataset = errors.New("not a saved dataset directory")

// DictInfo is the content of dataset_dict.json.
type DictInfo struct {
	Splits []string `json:"splits"`
}

// Feature describes the type of one column.
type Feature struct {
	Type  string   `json:"_type"`
	Dtype string   `json:"dtype,omitempty"`
	Names []string `json:"names,omitempty"`
}

// ColumnInfo is one entry of a split's column list.
type ColumnInfo struct {
	Name    string  `json:"name"`
	Feature Feature `json:"feature"`
}

// SplitInfo is the content of <split>/dataset_info.json.
type SplitInfo struct {
	Columns []ColumnInfo `json:"columns"`
	NumRows int          `json:"num_rows"`
}

// State is the content of <split>/state.json.
type State struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	Fingerprint string    `json:"fingerprint"`
}

func splitInfo(s *dataset.Split) (SplitInfo, error) {
	info := SplitInfo{NumRows: s.NumRows()}
	for _, name := range s.Columns() {
		kind, err := s.Kind(name)
		if err != nil {
			return SplitInfo{}, err
		}
		col := ColumnInfo{Name: name, Feature: Feature{Type: featureValue, Dtype: dtypeString}}
		switch kind {
		case dataset.KindInt64:
			col.Feature.Dtype = dtypeInt64
		case dataset.KindClassLabel:
			f, err := s.Feature(name)
			if err != nil {
				return SplitInfo{}, err
			}
			col.Feature = Feature{Type: featureClassLabel, Dtype: dtypeInt64, Names: f.Names()}
		}
		info.Columns = append(info.Columns, col)
	}
	return info, nil
}

// Fingerprint identifies a split layout: column names, types and label vocabularies.
func (i SplitInfo) Fingerprint() string {
	h := sha256.New()
	for _, c := range i.Columns {
		fmt.Fprintf(h, "%s|%s|%s|%s;", c.Name, c.Feature.Type, c.Feature.Dtype, strings.Join(c.Feature.Names, ","))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// SaveToDisk writes d under dir, replacing whatever dir held before.
func SaveToDisk(d *dataset.Dict, dir, runID string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	now := time.Now().UTC()
	for _, s := range d.Splits() {
		splitDir := filepath.Join(dir, s.Name())
		if err := os.MkdirAll(splitDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", splitDir, err)
		}

		info, err := splitInfo(s)
		if err != nil {
			return err
		}
		if err := writeParquet(filepath.Join(splitDir, dataFile), s, info); err != nil {
			return fmt.Errorf("split %s: %w", s.Name(), err)
		}
		if err := writeJSON(filepath.Join(splitDir, infoFile), info); err != nil {
			return err
		}
		state := State{RunID: runID, CreatedAt: now, Fingerprint: info.Fingerprint()}
		if err := writeJSON(filepath.Join(splitDir, stateFile), state); err != nil {
			return err
		}
	}

	return writeJSON(filepath.Join(dir, dictFile), DictInfo{Splits: d.Names()})
}

// LoadFromDisk reads a directory written by SaveToDisk.
func LoadFromDisk(dir string) (*dataset.Dict, error) {
	var dict DictInfo
	if err := readJSON(filepath.Join(dir, dictFile), &dict); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrNotADataset)
		}
		return nil, err
	}

	splits := make([]*dataset.Split, 0, len(dict.Splits))
	for _, name := range dict.Splits {
		splitDir := filepath.Join(dir, name)

		var info SplitInfo
		if err := readJSON(filepath.Join(splitDir, infoFile), &info); err != nil {
			return nil, err
		}
		var state State
		if err := readJSON(filepath.Join(splitDir, stateFile), &state); err != nil {
			return nil, err
		}
		if state.Fingerprint != info.Fingerprint() {
			return nil, fmt.Errorf("split %s: fingerprint %s does not match dataset_info.json (%s)",
				name, state.Fingerprint, info.Fingerprint())
		}

		s, err := readParquet(filepath.Join(splitDir, dataFile), name, info)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", name, err)
		}
		splits = append(splits, s)
	}
	return dataset.NewDict(splits...)
}

// ReadState returns the state recorded for one split of a saved dataset.
func ReadState(dir, split string) (State, error) {
	var st State
	err := readJSON(filepath.Join(dir, split, stateFile), &st)
	return st, err
}

func featureOf(c ColumnInfo) (*labels.ClassLabel, error) {
	switch c.Feature.Type {
	case featureValue:
		return nil, nil
	case featureClassLabel:
		return labels.New(c.Feature.Names)
	default:
		return nil, fmt.Errorf("column %s: unsupported feature type %q", c.Name, c.Feature.Type)
	}
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
