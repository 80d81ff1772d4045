package dataset

import (
	"fmt"

	"github.com/YashRaj5/insurance-nlp/internal/labels"
)

// Dict is an ordered collection of splits sharing a column layout.
type Dict struct {
	splits []*Split
}

// NewDict builds a Dict from splits in the given order.
func NewDict(splits ...*Split) (*Dict, error) {
	d := &Dict{}
	for _, s := range splits {
		if _, ok := d.Split(s.Name()); ok {
			return nil, fmt.Errorf("duplicate split %q", s.Name())
		}
		d.splits = append(d.splits, s)
	}
	return d, nil
}

// Clone returns a Dict whose splits can be transformed independently of d.
func (d *Dict) Clone() *Dict {
	out := &Dict{splits: make([]*Split, len(d.splits))}
	for i, s := range d.splits {
		out.splits[i] = s.Clone()
	}
	return out
}

// Split returns the named split.
func (d *Dict) Split(name string) (*Split, bool) {
	for _, s := range d.splits {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

// MustSplit returns the named split or an error naming the available ones.
func (d *Dict) MustSplit(name string) (*Split, error) {
	if s, ok := d.Split(name); ok {
		return s, nil
	}
	return nil, fmt.Errorf("split %q not found (have %v)", name, d.Names())
}

// Splits returns the splits in order.
func (d *Dict) Splits() []*Split {
	out := make([]*Split, len(d.splits))
	copy(out, d.splits)
	return out
}

// Names lists split names in order.
func (d *Dict) Names() []string {
	out := make([]string, len(d.splits))
	for i, s := range d.splits {
		out[i] = s.name
	}
	return out
}

// NumRows reports row counts per split.
func (d *Dict) NumRows() map[string]int {
	out := make(map[string]int, len(d.splits))
	for _, s := range d.splits {
		out[s.name] = s.rows
	}
	return out
}

// Map applies Split.Map to every split.
func (d *Dict) Map(column string, batchSize int, fn func([]string) ([]string, error)) error {
	for _, s := range d.splits {
		if err := s.Map(column, batchSize, fn); err != nil {
			return fmt.Errorf("split %q: %w", s.name, err)
		}
	}
	return nil
}

// RemoveColumns applies Split.RemoveColumns to every split.
func (d *Dict) RemoveColumns(names ...string) error {
	for _, s := range d.splits {
		if err := s.RemoveColumns(names...); err != nil {
			return err
		}
	}
	return nil
}

// RenameColumns applies Split.RenameColumns to every split.
func (d *Dict) RenameColumns(mapping map[string]string) error {
	for _, s := range d.splits {
		if err := s.RenameColumns(mapping); err != nil {
			return err
		}
	}
	return nil
}

// CastColumn applies Split.CastColumn to every split with the same feature.
func (d *Dict) CastColumn(column string, feature *labels.ClassLabel) error {
	for _, s := range d.splits {
		if err := s.CastColumn(column, feature); err != nil {
			return err
		}
	}
	return nil
}
