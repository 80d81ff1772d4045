package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromValuesThreeTopics(t *testing.T) {
	train := []string{"life", "auto", "medicare", "life", "auto", "life"}

	c := FromValues(train)
	require.Equal(t, 3, c.NumClasses())
	assert.Equal(t, []string{"auto", "life", "medicare"}, c.Names())

	seen := map[int]bool{}
	for _, name := range []string{"auto", "life", "medicare"} {
		id, err := c.StrToInt(name)
		require.NoError(t, err)
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true

		back, err := c.IntToStr(id)
		require.NoError(t, err)
		assert.Equal(t, name, back)
	}
}

func TestVocabularySizeMatchesDistinctValues(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   int
	}{
		{"empty", nil, 0},
		{"single", []string{"x"}, 1},
		{"repeats", []string{"a", "a", "a"}, 1},
		{"case sensitive", []string{"Life", "life"}, 2},
		{"mixed", []string{"home", "auto", "home", "disability", "auto"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromValues(tt.values).NumClasses())
		})
	}
}

func TestRoundTripTables(t *testing.T) {
	c := FromValues([]string{"annuities", "renters", "health", "retirement plans"})
	l2i := c.Label2ID()
	i2l := c.ID2Label()
	require.Len(t, l2i, 4)
	require.Len(t, i2l, 4)
	for label, id := range l2i {
		assert.Equal(t, label, i2l[id])
	}

	strs := c.ID2LabelStrings()
	assert.Equal(t, "annuities", strs["0"])
}

func TestUnknownAndDuplicate(t *testing.T) {
	c := FromValues([]string{"auto"})

	_, err := c.StrToInt("boat")
	assert.ErrorIs(t, err, ErrUnknownLabel)

	_, err = c.IntToStr(3)
	assert.ErrorIs(t, err, ErrUnknownLabel)

	_, err = c.Encode([]string{"auto", "boat"})
	assert.ErrorIs(t, err, ErrUnknownLabel)

	_, err = New([]string{"a", "b", "a"})
	assert.ErrorIs(t, err, ErrDuplicateLabel)
}

func TestNamesIsACopy(t *testing.T) {
	c := FromValues([]string{"b", "a"})
	n := c.Names()
	n[0] = "zzz"
	assert.Equal(t, []string{"a", "b"}, c.Names())
	assert.True(t, c.Equal(FromValues([]string{"a", "b"})))
	assert.False(t, c.Equal(FromValues([]string{"a"})))
}
