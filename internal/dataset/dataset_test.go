package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YashRaj5/insurance-nlp/internal/labels"
)

func rawSplit(t *testing.T, name string, questions, topics []string) *Split {
	t.Helper()
	s := NewSplit(name)
	idx := make([]int64, len(questions))
	for i := range idx {
		idx[i] = int64(i)
	}
	require.NoError(t, s.AddInt64Column("index", idx))
	require.NoError(t, s.AddStringColumn("topic_en", topics))
	require.NoError(t, s.AddStringColumn("question_en", questions))
	return s
}

func TestRemoveRenameCast(t *testing.T) {
	train := rawSplit(t, "train",
		[]string{"What Is Auto?", "Medicare  Part B?", "Life cover?"},
		[]string{"auto", "medicare", "life"})
	test := rawSplit(t, "test", []string{"Car?"}, []string{"auto"})
	d, err := NewDict(train, test)
	require.NoError(t, err)

	require.NoError(t, d.RemoveColumns("index"))
	require.NoError(t, d.RenameColumns(map[string]string{"question_en": "text", "topic_en": "label"}))
	assert.Equal(t, []string{"label", "text"}, train.Columns())

	trainLabels, err := train.Strings("label")
	require.NoError(t, err)
	feature := labels.FromValues(trainLabels)
	require.NoError(t, d.CastColumn("label", feature))

	kind, err := test.Kind("label")
	require.NoError(t, err)
	assert.Equal(t, KindClassLabel, kind)

	codes, err := train.Codes("label")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, codes)

	decoded, err := train.Strings("label")
	require.NoError(t, err)
	assert.Equal(t, []string{"auto", "medicare", "life"}, decoded)

	f, err := test.Feature("label")
	require.NoError(t, err)
	assert.Same(t, feature, f)
}

func TestCastUnknownLabel(t *testing.T) {
	train := rawSplit(t, "train", []string{"a"}, []string{"auto"})
	val := rawSplit(t, "validation", []string{"b"}, []string{"boat"})
	d, err := NewDict(train, val)
	require.NoError(t, err)

	err = d.CastColumn("topic_en", labels.FromValues([]string{"auto"}))
	assert.ErrorIs(t, err, labels.ErrUnknownLabel)
}

func TestMapIsBatched(t *testing.T) {
	s := NewSplit("train")
	require.NoError(t, s.AddStringColumn("text", []string{"A", "B", "C", "D", "E"}))

	var sizes []int
	err := s.Map("text", 2, func(batch []string) ([]string, error) {
		sizes = append(sizes, len(batch))
		out := make([]string, len(batch))
		for i, v := range batch {
			out[i] = strings.ToLower(v)
		}
		return out, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)

	got, _ := s.Strings("text")
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestMapRejectsWrongLength(t *testing.T) {
	s := NewSplit("train")
	require.NoError(t, s.AddStringColumn("text", []string{"a", "b"}))
	err := s.Map("text", 0, func(batch []string) ([]string, error) { return batch[:1], nil })
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestColumnErrors(t *testing.T) {
	s := NewSplit("train")
	require.NoError(t, s.AddStringColumn("a", []string{"1", "2"}))
	require.NoError(t, s.AddStringColumn("b", []string{"x", "y"}))

	assert.ErrorIs(t, s.AddStringColumn("c", []string{"1"}), ErrLengthMismatch)
	assert.ErrorIs(t, s.AddStringColumn("a", []string{"1", "2"}), ErrColumnExists)
	assert.ErrorIs(t, s.RemoveColumns("nope"), ErrUnknownColumn)
	assert.ErrorIs(t, s.RenameColumns(map[string]string{"a": "b"}), ErrColumnExists)
	_, err := s.Codes("a")
	assert.Error(t, err)

	// swapping names is allowed
	require.NoError(t, s.RenameColumns(map[string]string{"a": "b", "b": "a"}))
	assert.Equal(t, []string{"b", "a"}, s.Columns())
}

func TestDictSplitLookup(t *testing.T) {
	d, err := NewDict(NewSplit("train"), NewSplit("test"))
	require.NoError(t, err)
	_, err = d.MustSplit("validation")
	assert.Error(t, err)
	assert.Equal(t, []string{"train", "test"}, d.Names())

	_, err = NewDict(NewSplit("train"), NewSplit("train"))
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	train := rawSplit(t, "train", []string{"What  Is Auto?"}, []string{"auto"})
	d, err := NewDict(train)
	require.NoError(t, err)

	raw := d.Clone()
	require.NoError(t, d.Map("question_en", 0, func(b []string) ([]string, error) {
		return []string{strings.ToLower(b[0])}, nil
	}))
	require.NoError(t, d.RemoveColumns("index"))
	require.NoError(t, d.RenameColumns(map[string]string{"question_en": "text"}))

	rawTrain, err := raw.MustSplit("train")
	require.NoError(t, err)
	assert.Equal(t, []string{"index", "topic_en", "question_en"}, rawTrain.Columns())
	q, err := rawTrain.Strings("question_en")
	require.NoError(t, err)
	assert.Equal(t, []string{"What  Is Auto?"}, q)
}

func TestInt64Column(t *testing.T) {
	s := NewSplit("test")
	require.NoError(t, s.AddInt64Column("index", []int64{10, 11}))
	require.NoError(t, s.AddStringColumn("topic_en", []string{"auto", "life"}))

	kind, err := s.Kind("index")
	require.NoError(t, err)
	assert.Equal(t, KindInt64, kind)

	ints, err := s.Int64s("index")
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, ints)

	strs, err := s.Strings("index")
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "11"}, strs)

	_, err = s.Int64s("topic_en")
	assert.Error(t, err)
	_, err = s.Codes("index")
	assert.Error(t, err)
	err = s.Map("index", 1, func(b []string) ([]string, error) { return b, nil })
	assert.ErrorIs(t, err, ErrNotStringColumn)

	clone := s.Clone()
	require.NoError(t, clone.RenameColumns(map[string]string{"index": "row_id"}))
	kind, err = clone.Kind("row_id")
	require.NoError(t, err)
	assert.Equal(t, KindInt64, kind)
	assert.Equal(t, []string{"index", "topic_en"}, s.Columns())
}
