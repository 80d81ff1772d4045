package tokenize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YashRaj5/insurance-nlp/internal/dataset"
	"github.com/YashRaj5/insurance-nlp/internal/hub"
	"github.com/YashRaj5/insurance-nlp/internal/labels"
)

const (
	padID = 0
	clsID = 2
	sepID = 3
)

func testTokenizer(t *testing.T, maxLength int) *Tokenizer {
	t.Helper()
	tk, err := FromVocab(filepath.Join("testdata", "vocab.txt"), Options{MaxLength: maxLength})
	require.NoError(t, err)
	return tk
}

func TestEncodeBatchKnownSentence(t *testing.T) {
	tk := testTokenizer(t, 32)
	assert.Equal(t, padID, tk.PadID())

	enc, err := tk.EncodeBatch([]string{"what is life insurance?"})
	require.NoError(t, err)
	require.Len(t, enc, 1)
	assert.Equal(t, []int{clsID, 5, 6, 7, 8, 9, sepID}, enc[0].InputIDs)
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1, 1}, enc[0].AttentionMask)
}

func TestEncodeBatchPadsToLongest(t *testing.T) {
	tk := testTokenizer(t, 32)

	enc, err := tk.EncodeBatch([]string{
		"what is life insurance?",
		"car?",
		"does medicare cover dental for my policy?",
	})
	require.NoError(t, err)
	require.Len(t, enc, 3)

	width := len(enc[0].InputIDs)
	for i, e := range enc {
		assert.Len(t, e.InputIDs, width, "row %d", i)
		assert.Len(t, e.AttentionMask, width, "row %d", i)
		assert.Equal(t, clsID, e.InputIDs[0], "row %d", i)

		filled := 0
		for _, m := range e.AttentionMask {
			filled += m
		}
		assert.Equal(t, sepID, e.InputIDs[filled-1], "row %d", i)
		for j := filled; j < width; j++ {
			assert.Equal(t, padID, e.InputIDs[j], "row %d pos %d", i, j)
			assert.Zero(t, e.AttentionMask[j])
		}
	}
	assert.Equal(t, []int{clsID, 14, 9, sepID}, enc[1].InputIDs[:4])
}

func TestEncodeBatchTruncates(t *testing.T) {
	tk := testTokenizer(t, 6)

	long := strings.Repeat("life insurance ", 20)
	enc, err := tk.EncodeBatch([]string{long, "car?"})
	require.NoError(t, err)

	assert.Equal(t, []int{clsID, 7, 8, 7, 8, sepID}, enc[0].InputIDs)
	assert.Len(t, enc[1].InputIDs, 6)
	assert.Equal(t, []int{1, 1, 1, 1, 0, 0}, enc[1].AttentionMask)
}

func TestEncodeBatchUnknownWords(t *testing.T) {
	tk := testTokenizer(t, 16)
	enc, err := tk.EncodeBatch([]string{"zebra"})
	require.NoError(t, err)
	assert.Equal(t, []int{clsID, 1, sepID}, enc[0].InputIDs)
}

func TestEncodeBatchEmpty(t *testing.T) {
	tk := testTokenizer(t, 16)
	enc, err := tk.EncodeBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, enc)
}

func TestFromVocabErrors(t *testing.T) {
	_, err := FromVocab(filepath.Join("testdata", "vocab.txt"), Options{MaxLength: 2})
	assert.Error(t, err)

	tests := []struct {
		name  string
		vocab string
	}{
		{"no special tokens", "[UNK]\nwhat\nis\n"},
		{"missing sep", "[PAD]\n[UNK]\n[CLS]\nwhat\nis\n"},
		{"missing pad", "[UNK]\n[CLS]\n[SEP]\nwhat\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vocab.txt")
			require.NoError(t, os.WriteFile(path, []byte(tt.vocab), 0o644))
			_, err := FromVocab(path, Options{MaxLength: 16})
			assert.ErrorIs(t, err, ErrMissingSpecialToken)
		})
	}
}

func TestSpecialTokenIDsComeFromVocab(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("[UNK]\nwhat\n[SEP]\nis\n[PAD]\n[CLS]\n"), 0o644))
	tk, err := FromVocab(path, Options{MaxLength: 16})
	require.NoError(t, err)

	assert.Equal(t, 4, tk.PadID())
	enc, err := tk.EncodeBatch([]string{"what is", "what"})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 1, 3, 2}, enc[0].InputIDs)
	assert.Equal(t, []int{5, 1, 2, 4}, enc[1].InputIDs)
	for _, e := range enc {
		for _, id := range e.InputIDs {
			assert.Less(t, id, 6)
		}
	}
}

func TestTokenizeSplitBatches(t *testing.T) {
	tk := testTokenizer(t, 32)

	feature, err := labels.New([]string{"auto", "life"})
	require.NoError(t, err)
	s := dataset.NewSplit("train")
	require.NoError(t, s.AddClassLabelColumn("label", []int{1, 0, 1}, feature))
	require.NoError(t, s.AddStringColumn("text", []string{
		"what is life insurance?",
		"car?",
		"can i borrow from whole life?",
	}))

	out, err := TokenizeSplit(tk, s, "text", 2)
	require.NoError(t, err)
	assert.Equal(t, "train", out.Split)
	assert.Equal(t, 3, out.NumRows())
	assert.Equal(t, []int{1, 0, 1}, out.Labels)

	assert.Equal(t, len(out.InputIDs[0]), len(out.InputIDs[1]), "same batch, same width")
	assert.Equal(t, []int{clsID, 22, 23, 24, 25, 20, 7, 9, sepID}, out.InputIDs[2])
	for i := range out.InputIDs {
		assert.LessOrEqual(t, len(out.InputIDs[i]), tk.MaxLength())
	}

	_, err = TokenizeSplit(tk, s, "question", 2)
	assert.ErrorIs(t, err, dataset.ErrUnknownColumn)
}

func TestPretrainedDownloadsOnce(t *testing.T) {
	vocab, err := os.ReadFile(filepath.Join("testdata", "vocab.txt"))
	require.NoError(t, err)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/distilbert-base-uncased/resolve/main/vocab.txt" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_, _ = w.Write(vocab)
	}))
	defer srv.Close()

	client := hub.NewModelClient(hub.DefaultConfig(srv.URL), nil)
	cache := t.TempDir()

	for i := 0; i < 2; i++ {
		tk, err := Pretrained(context.Background(), client, "distilbert-base-uncased", cache, Options{MaxLength: 16})
		require.NoError(t, err)
		enc, err := tk.EncodeBatch([]string{"life?"})
		require.NoError(t, err)
		assert.Equal(t, []int{clsID, 7, 9, sepID}, enc[0].InputIDs)
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.FileExists(t, filepath.Join(cache, "distilbert-base-uncased", VocabFile))
}
