// Package labels implements the categorical encoding used for topic labels.
//
// A ClassLabel is computed once from the training split and carried with the
// dataset so the same id<->label tables are used at training and inference time.
package labels

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	// ErrUnknownLabel is returned when a value is not part of the vocabulary.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrDuplicateLabel is returned when a vocabulary lists the same name twice.
	ErrDuplicateLabel = errors.New("duplicate label")
)

// ClassLabel is a fixed enumeration of label names. The id of a name is its
// position in Names.
type ClassLabel struct {
	names  []string
	str2id map[string]int
}

// New builds a ClassLabel over names in the given order.
func New(names []string) (*ClassLabel, error) {
	c := &ClassLabel{
		names:  make([]string, len(names)),
		str2id: make(map[string]int, len(names)),
	}
	copy(c.names, names)
	for i, n := range c.names {
		if _, dup := c.str2id[n]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, n)
		}
		c.str2id[n] = i
	}
	return c, nil
}

// FromValues computes the vocabulary of distinct values, sorted.
func FromValues(values []string) *ClassLabel {
	seen := make(map[string]struct{}, 16)
	names := make([]string, 0, 16)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		names = append(names, v)
	}
	sort.Strings(names)

	// names are distinct, New cannot fail
	c, _ := New(names)
	return c
}

// Names returns a copy of the vocabulary in id order.
func (c *ClassLabel) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// NumClasses is the vocabulary size.
func (c *ClassLabel) NumClasses() int { return len(c.names) }

// StrToInt maps a label name to its id.
func (c *ClassLabel) StrToInt(name string) (int, error) {
	id, ok := c.str2id[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, name)
	}
	return id, nil
}

// IntToStr maps an id back to its label name.
func (c *ClassLabel) IntToStr(id int) (string, error) {
	if id < 0 || id >= len(c.names) {
		return "", fmt.Errorf("%w: id %d out of range [0,%d)", ErrUnknownLabel, id, len(c.names))
	}
	return c.names[id], nil
}

// Label2ID returns a fresh label -> id table.
func (c *ClassLabel) Label2ID() map[string]int {
	out := make(map[string]int, len(c.names))
	for n, id := range c.str2id {
		out[n] = id
	}
	return out
}

// ID2Label returns a fresh id -> label table.
func (c *ClassLabel) ID2Label() map[int]string {
	out := make(map[int]string, len(c.names))
	for id, n := range c.names {
		out[id] = n
	}
	return out
}

// ID2LabelStrings is ID2Label keyed by the decimal id, the shape model configs use.
func (c *ClassLabel) ID2LabelStrings() map[string]string {
	out := make(map[string]string, len(c.names))
	for id, n := range c.names {
		out[strconv.Itoa(id)] = n
	}
	return out
}

// Encode maps every value to its id.
func (c *ClassLabel) Encode(values []string) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		id, err := c.StrToInt(v)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = id
	}
	return out, nil
}

// Equal reports whether both vocabularies list the same names in the same order.
func (c *ClassLabel) Equal(o *ClassLabel) bool {
	if c == nil || o == nil {
		return c == o
	}
	if len(c.names) != len(o.names) {
		return false
	}
	for i := range c.names {
		if c.names[i] != o.names[i] {
			return false
		}
	}
	return true
}
