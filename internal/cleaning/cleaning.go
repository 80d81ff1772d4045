// Package cleaning normalizes question text before it is persisted.
//
// The whole contract is: lowercase, then collapse every run of two or more
// spaces to a single space. Punctuation, tabs, newlines and unicode forms are
// left alone.
package cleaning

import (
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/YashRaj5/insurance-nlp/internal/dataset"
)

// DefaultBatchSize matches the batch size used when mapping over a split.
const DefaultBatchSize = 1000

var multiSpace = regexp.MustCompile(` {2,}`)

// Clean normalizes a single string.
func Clean(s string) string {
	return clean(cases.Lower(language.Und), s)
}

func clean(lower cases.Caser, s string) string {
	return multiSpace.ReplaceAllString(lower.String(s), " ")
}

// Batch cleans a batch of strings. The input slice is not modified.
func Batch(texts []string) []string {
	// a Caser carries state and is not safe for concurrent use; one per batch
	lower := cases.Lower(language.Und)
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = clean(lower, t)
	}
	return out
}

// Apply cleans column in every split of d, batchSize rows at a time.
func Apply(d *dataset.Dict, column string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return d.Map(column, batchSize, func(batch []string) ([]string, error) {
		return Batch(batch), nil
	})
}
