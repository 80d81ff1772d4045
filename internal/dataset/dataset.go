// Package dataset holds labeled text corpora in memory as ordered, named
// splits of columns. String and int64 columns carry raw values; class-label
// columns carry integer codes together with the vocabulary that produced them.
package dataset

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/YashRaj5/insurance-nlp/internal/labels"
)

var (
	// ErrUnknownColumn is returned for operations on a column the split lacks.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrColumnExists is returned when adding or renaming onto an existing name.
	ErrColumnExists = errors.New("column already exists")
	// ErrLengthMismatch is returned when a column's length differs from the split's row count.
	ErrLengthMismatch = errors.New("column length mismatch")
	// ErrNotStringColumn is returned when a string operation targets a non-string column.
	ErrNotStringColumn = errors.New("not a string column")
)

// Kind distinguishes raw string and integer columns from categorical ones.
type Kind int

const (
	KindString Kind = iota
	KindClassLabel
	KindInt64
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindClassLabel:
		return "class_label"
	case KindInt64:
		return "int64"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type column struct {
	name    string
	strings []string
	codes   []int
	ints    []int64
	integer bool
	feature *labels.ClassLabel
}

func (c *column) kind() Kind {
	switch {
	case c.feature != nil:
		return KindClassLabel
	case c.integer:
		return KindInt64
	default:
		return KindString
	}
}

func (c *column) len() int {
	switch c.kind() {
	case KindClassLabel:
		return len(c.codes)
	case KindInt64:
		return len(c.ints)
	default:
		return len(c.strings)
	}
}

// Split is one named partition (train, test, validation) of a dataset.
type Split struct {
	name string
	cols []*column
	rows int
}

// NewSplit returns an empty split.
func NewSplit(name string) *Split {
	return &Split{name: name}
}

// Clone returns a split that can be transformed without affecting s.
// Value slices are shared; transformations always replace them.
func (s *Split) Clone() *Split {
	out := &Split{name: s.name, rows: s.rows, cols: make([]*column, len(s.cols))}
	for i, c := range s.cols {
		cc := *c
		out.cols[i] = &cc
	}
	return out
}

// Name of the split.
func (s *Split) Name() string { return s.name }

// NumRows is the number of records in the split.
func (s *Split) NumRows() int { return s.rows }

// Columns lists column names in order.
func (s *Split) Columns() []string {
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		out[i] = c.name
	}
	return out
}

func (s *Split) lookup(name string) (int, *column, error) {
	for i, c := range s.cols {
		if c.name == name {
			return i, c, nil
		}
	}
	return -1, nil, fmt.Errorf("%w: %q in split %q", ErrUnknownColumn, name, s.name)
}

func (s *Split) add(c *column) error {
	if _, _, err := s.lookup(c.name); err == nil {
		return fmt.Errorf("%w: %q in split %q", ErrColumnExists, c.name, s.name)
	}
	if len(s.cols) == 0 {
		s.rows = c.len()
	} else if c.len() != s.rows {
		return fmt.Errorf("%w: column %q has %d values, split %q has %d rows",
			ErrLengthMismatch, c.name, c.len(), s.name, s.rows)
	}
	s.cols = append(s.cols, c)
	return nil
}

// AddStringColumn appends a string column. The values slice is copied.
func (s *Split) AddStringColumn(name string, values []string) error {
	v := make([]string, len(values))
	copy(v, values)
	return s.add(&column{name: name, strings: v})
}

// AddInt64Column appends an integer column. The values slice is copied.
func (s *Split) AddInt64Column(name string, values []int64) error {
	v := make([]int64, len(values))
	copy(v, values)
	return s.add(&column{name: name, ints: v, integer: true})
}

// AddClassLabelColumn appends a categorical column of codes over feature.
func (s *Split) AddClassLabelColumn(name string, codes []int, feature *labels.ClassLabel) error {
	if feature == nil {
		return fmt.Errorf("class label column %q: nil feature", name)
	}
	for i, code := range codes {
		if _, err := feature.IntToStr(code); err != nil {
			return fmt.Errorf("column %q row %d: %w", name, i, err)
		}
	}
	v := make([]int, len(codes))
	copy(v, codes)
	return s.add(&column{name: name, codes: v, feature: feature})
}

// Kind reports the kind of a column.
func (s *Split) Kind(name string) (Kind, error) {
	_, c, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	return c.kind(), nil
}

// Strings returns a copy of a column's values. Class-label columns are decoded
// back to their names, int64 columns are rendered in decimal.
func (s *Split) Strings(name string) ([]string, error) {
	_, c, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, c.len())
	switch c.kind() {
	case KindClassLabel:
		for i, code := range c.codes {
			// codes were validated on insert
			out[i], _ = c.feature.IntToStr(code)
		}
	case KindInt64:
		for i, v := range c.ints {
			out[i] = strconv.FormatInt(v, 10)
		}
	default:
		copy(out, c.strings)
	}
	return out, nil
}

// Int64s returns a copy of an int64 column's values.
func (s *Split) Int64s(name string) ([]int64, error) {
	_, c, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if c.kind() != KindInt64 {
		return nil, fmt.Errorf("column %q is a %s column", name, c.kind())
	}
	out := make([]int64, len(c.ints))
	copy(out, c.ints)
	return out, nil
}

// Codes returns a copy of a class-label column's integer codes.
func (s *Split) Codes(name string) ([]int, error) {
	_, c, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if c.feature == nil {
		return nil, fmt.Errorf("column %q is a %s column", name, c.kind())
	}
	out := make([]int, len(c.codes))
	copy(out, c.codes)
	return out, nil
}

// Feature returns the vocabulary of a class-label column, or nil for string columns.
func (s *Split) Feature(name string) (*labels.ClassLabel, error) {
	_, c, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return c.feature, nil
}

// Map replaces a string column batch by batch. fn must return as many values
// as it receives.
func (s *Split) Map(name string, batchSize int, fn func(batch []string) ([]string, error)) error {
	_, c, err := s.lookup(name)
	if err != nil {
		return err
	}
	if c.kind() != KindString {
		return fmt.Errorf("%w: %q", ErrNotStringColumn, name)
	}
	if batchSize <= 0 {
		batchSize = len(c.strings)
	}
	out := make([]string, 0, len(c.strings))
	for start := 0; start < len(c.strings); start += batchSize {
		end := min(start+batchSize, len(c.strings))
		batch := make([]string, end-start)
		copy(batch, c.strings[start:end])
		mapped, err := fn(batch)
		if err != nil {
			return fmt.Errorf("map %q rows [%d,%d): %w", name, start, end, err)
		}
		if len(mapped) != len(batch) {
			return fmt.Errorf("%w: map %q returned %d values for a batch of %d",
				ErrLengthMismatch, name, len(mapped), len(batch))
		}
		out = append(out, mapped...)
	}
	c.strings = out
	return nil
}

// RemoveColumns drops the named columns. All names must exist.
func (s *Split) RemoveColumns(names ...string) error {
	for _, n := range names {
		if _, _, err := s.lookup(n); err != nil {
			return err
		}
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := s.cols[:0]
	for _, c := range s.cols {
		if !drop[c.name] {
			kept = append(kept, c)
		}
	}
	s.cols = kept
	if len(s.cols) == 0 {
		s.rows = 0
	}
	return nil
}

// RenameColumns renames columns old -> new, keeping their position.
func (s *Split) RenameColumns(mapping map[string]string) error {
	for from := range mapping {
		if _, _, err := s.lookup(from); err != nil {
			return err
		}
	}
	final := make(map[string]bool, len(s.cols))
	for _, c := range s.cols {
		name := c.name
		if to, ok := mapping[name]; ok {
			name = to
		}
		if final[name] {
			return fmt.Errorf("%w: %q in split %q", ErrColumnExists, name, s.name)
		}
		final[name] = true
	}
	for _, c := range s.cols {
		if to, ok := mapping[c.name]; ok {
			c.name = to
		}
	}
	return nil
}

// CastColumn converts a column to a class-label column over feature.
func (s *Split) CastColumn(name string, feature *labels.ClassLabel) error {
	_, c, err := s.lookup(name)
	if err != nil {
		return err
	}
	if c.kind() != KindString {
		values, _ := s.Strings(name)
		c.feature, c.codes, c.ints, c.integer, c.strings = nil, nil, nil, false, values
	}
	codes, err := feature.Encode(c.strings)
	if err != nil {
		return fmt.Errorf("cast %q in split %q: %w", name, s.name, err)
	}
	c.codes, c.feature, c.strings = codes, feature, nil
	return nil
}
