// Package profile summarises the label distribution of a cleaned dataset and
// exports it as a spreadsheet for review.
package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/YashRaj5/insurance-nlp/internal/dataset"
)

const summarySheet = "summary"

// LabelCount is the frequency of one label in a split.
type LabelCount struct {
	Label string
	Count int
	Share float64
}

// Profile describes one split.
type Profile struct {
	Split        string
	NumRows      int
	Labels       []LabelCount
	AvgWords     float64
	MaxWords     int
	EmptyTexts   int
	DistinctText int
}

// Build counts labels and text lengths. Labels are ordered by count
// descending, then by name.
func Build(split *dataset.Split, labelColumn, textColumn string) (Profile, error) {
	lbls, err := split.Strings(labelColumn)
	if err != nil {
		return Profile{}, err
	}
	texts, err := split.Strings(textColumn)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{Split: split.Name(), NumRows: split.NumRows()}

	counts := make(map[string]int)
	for _, l := range lbls {
		counts[l]++
	}
	for l, n := range counts {
		share := 0.0
		if p.NumRows > 0 {
			share = float64(n) / float64(p.NumRows)
		}
		p.Labels = append(p.Labels, LabelCount{Label: l, Count: n, Share: share})
	}
	sort.Slice(p.Labels, func(i, j int) bool {
		if p.Labels[i].Count != p.Labels[j].Count {
			return p.Labels[i].Count > p.Labels[j].Count
		}
		return p.Labels[i].Label < p.Labels[j].Label
	})

	seen := make(map[string]struct{}, len(texts))
	total := 0
	for _, t := range texts {
		n := len(strings.Fields(t))
		total += n
		p.MaxWords = max(p.MaxWords, n)
		if n == 0 {
			p.EmptyTexts++
		}
		seen[t] = struct{}{}
	}
	p.DistinctText = len(seen)
	if len(texts) > 0 {
		p.AvgWords = float64(total) / float64(len(texts))
	}
	return p, nil
}

// BuildAll profiles every split of d.
func BuildAll(d *dataset.Dict, labelColumn, textColumn string) ([]Profile, error) {
	out := make([]Profile, 0, len(d.Names()))
	for _, s := range d.Splits() {
		p, err := Build(s, labelColumn, textColumn)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", s.Name(), err)
		}
		out = append(out, p)
	}
	return out, nil
}

// WriteXLSX writes a summary sheet plus one label sheet per split.
func WriteXLSX(path string, profiles []Profile) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	header := []any{"split", "rows", "labels", "avg_words", "max_words", "empty_texts", "distinct_texts"}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return err
	}

	for i, p := range profiles {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{p.Split, p.NumRows, len(p.Labels), p.AvgWords, p.MaxWords, p.EmptyTexts, p.DistinctText}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary for %s: %w", p.Split, err)
		}

		sheet := sheetName(p.Split)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", sheet, err)
		}
		head := []any{"label", "count", "share"}
		if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
			return err
		}
		for j, lc := range p.Labels {
			cell, err := excelize.CoordinatesToCellName(1, j+2)
			if err != nil {
				return err
			}
			r := []any{lc.Label, lc.Count, lc.Share}
			if err := f.SetSheetRow(sheet, cell, &r); err != nil {
				return fmt.Errorf("failed to write %s row %d: %w", sheet, j, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// sheetName keeps split names within Excel's 31 character limit.
func sheetName(split string) string {
	name := "split_" + split
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
