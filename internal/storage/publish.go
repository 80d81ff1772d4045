package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/YashRaj5/insurance-nlp/internal/dataset"
)

// Publish replaces the shared dataset: it empties the mirror, saves d into
// scratch and copies scratch to the mirror.
func Publish(ctx context.Context, d *dataset.Dict, scratch string, m Mirror, runID string) error {
	if err := m.Remove(ctx); err != nil {
		return fmt.Errorf("failed to clear shared dataset: %w", err)
	}
	if err := SaveToDisk(d, scratch, runID); err != nil {
		return fmt.Errorf("failed to save dataset to %s: %w", scratch, err)
	}
	if err := m.Upload(ctx, scratch); err != nil {
		return fmt.Errorf("failed to publish dataset: %w", err)
	}
	return nil
}

// Fetch replaces scratch with a copy of the shared dataset and loads it.
func Fetch(ctx context.Context, m Mirror, scratch string) (*dataset.Dict, error) {
	if err := os.RemoveAll(scratch); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", scratch, err)
	}
	if err := m.Download(ctx, scratch); err != nil {
		return nil, fmt.Errorf("failed to fetch shared dataset: %w", err)
	}
	d, err := LoadFromDisk(scratch)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset from %s: %w", scratch, err)
	}
	return d, nil
}
