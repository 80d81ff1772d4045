// Package tokenize turns cleaned question text into padded, truncated
// WordPiece id sequences for a BERT-style encoder.
package tokenize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"

	"github.com/YashRaj5/insurance-nlp/internal/dataset"
	"github.com/YashRaj5/insurance-nlp/internal/hub"
)

// Special tokens of the uncased BERT vocabulary.
const (
	ClsToken  = "[CLS]"
	SepToken  = "[SEP]"
	PadToken  = "[PAD]"
	UnkToken  = "[UNK]"
	MaskToken = "[MASK]"

	// VocabFile is the vocabulary file name inside a model repository.
	VocabFile = "vocab.txt"

	DefaultMaxLength = 512
)

// ErrMissingSpecialToken is returned when the vocabulary lacks a required special token.
var ErrMissingSpecialToken = errors.New("vocabulary is missing a special token")

// Options controls encoding.
type Options struct {
	// MaxLength bounds every sequence, special tokens included.
	MaxLength int
}

// Encoded is one tokenized text.
type Encoded struct {
	InputIDs      []int
	AttentionMask []int
}

// Tokenized is a whole split after tokenization, row-aligned with its labels.
type Tokenized struct {
	Split         string
	InputIDs      [][]int
	AttentionMask [][]int
	Labels        []int
}

// NumRows returns the number of encoded rows.
func (t *Tokenized) NumRows() int { return len(t.InputIDs) }

// Tokenizer wraps a WordPiece tokenizer configured like bert-base-uncased.
type Tokenizer struct {
	tk        *tokenizer.Tokenizer
	maxLength int
	clsID     int
	sepID     int
	padID     int
}

// FromVocab builds a tokenizer from a WordPiece vocab.txt.
func FromVocab(vocabPath string, opts Options) (*Tokenizer, error) {
	if opts.MaxLength == 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.MaxLength < 3 {
		return nil, fmt.Errorf("max length %d leaves no room for text", opts.MaxLength)
	}

	model, err := wordpiece.NewWordPieceFromFile(vocabPath, UnkToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary %s: %w", vocabPath, err)
	}

	// Ids come from vocab.txt itself; added tokens would get ids past its end.
	t := &Tokenizer{maxLength: opts.MaxLength}
	for _, p := range []struct {
		token string
		id    *int
	}{{ClsToken, &t.clsID}, {SepToken, &t.sepID}, {PadToken, &t.padID}} {
		id, ok := model.TokenToId(p.token)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSpecialToken, p.token)
		}
		*p.id = id
	}

	tk := tokenizer.NewTokenizer(model)
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	var special []tokenizer.AddedToken
	for _, s := range []string{ClsToken, SepToken, PadToken, UnkToken, MaskToken} {
		if _, ok := model.TokenToId(s); ok {
			special = append(special, tokenizer.NewAddedToken(s, true))
		}
	}
	tk.AddSpecialTokens(special)
	t.tk = tk

	tk.WithPostProcessor(processor.NewBertProcessing(
		processor.PostToken{Id: t.sepID, Value: SepToken},
		processor.PostToken{Id: t.clsID, Value: ClsToken},
	))
	return t, nil
}

// Pretrained fetches the vocabulary of a hub model repository into cacheDir
// (reusing a cached copy) and builds a tokenizer from it.
func Pretrained(ctx context.Context, client *hub.ModelClient, repo, cacheDir string, opts Options) (*Tokenizer, error) {
	vocab := filepath.Join(cacheDir, strings.ReplaceAll(repo, "/", "--"), VocabFile)
	if _, err := os.Stat(vocab); err != nil {
		if err := client.Download(ctx, repo, VocabFile, vocab); err != nil {
			return nil, fmt.Errorf("failed to fetch tokenizer for %s: %w", repo, err)
		}
	}
	return FromVocab(vocab, opts)
}

// MaxLength returns the configured sequence bound.
func (t *Tokenizer) MaxLength() int { return t.maxLength }

// PadID returns the id used for padding.
func (t *Tokenizer) PadID() int { return t.padID }

// EncodeBatch encodes texts as [CLS] tokens [SEP], truncates each to MaxLength
// and right-pads all of them to the longest sequence in the batch.
func (t *Tokenizer) EncodeBatch(texts []string) ([]Encoded, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]tokenizer.EncodeInput, len(texts))
	for i, s := range texts {
		inputs[i] = tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(s))
	}
	encodings, err := t.tk.EncodeBatch(inputs, true)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	ids := make([][]int, len(encodings))
	longest := 0
	for i := range encodings {
		ids[i] = t.truncate(encodings[i].GetIds())
		longest = max(longest, len(ids[i]))
	}

	out := make([]Encoded, len(ids))
	for i, seq := range ids {
		padded := make([]int, longest)
		mask := make([]int, longest)
		copy(padded, seq)
		for j := range padded {
			if j < len(seq) {
				mask[j] = 1
			} else {
				padded[j] = t.padID
			}
		}
		out[i] = Encoded{InputIDs: padded, AttentionMask: mask}
	}
	return out, nil
}

// truncate drops trailing text tokens so the sequence, closing [SEP]
// included, fits in maxLength.
func (t *Tokenizer) truncate(ids []int) []int {
	if len(ids) <= t.maxLength {
		return ids
	}
	out := make([]int, t.maxLength)
	copy(out, ids[:t.maxLength-1])
	out[t.maxLength-1] = t.sepID
	return out
}

// TokenizeSplit encodes one text column of a split in batches. Padding is per
// batch, so sequence lengths may differ between batches but never within one.
// The split must carry a class-label column named "label".
func TokenizeSplit(t *Tokenizer, split *dataset.Split, column string, batchSize int) (*Tokenized, error) {
	texts, err := split.Strings(column)
	if err != nil {
		return nil, err
	}
	codes, err := split.Codes("label")
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	out := &Tokenized{
		Split:         split.Name(),
		InputIDs:      make([][]int, 0, len(texts)),
		AttentionMask: make([][]int, 0, len(texts)),
		Labels:        codes,
	}
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		enc, err := t.EncodeBatch(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("split %s rows %d-%d: %w", split.Name(), start, end, err)
		}
		for _, e := range enc {
			out.InputIDs = append(out.InputIDs, e.InputIDs)
			out.AttentionMask = append(out.AttentionMask, e.AttentionMask)
		}
	}
	return out, nil
}
