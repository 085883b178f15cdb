// Package tokenizer turns record text into fixed-width character shingles
// (trigrams). Case is preserved; the index store folds case when it writes
// and looks up postings.
package tokenizer

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Width is the number of runes in a shingle.
const Width = 3

// collators are not safe for concurrent use.
var collators = sync.Pool{
	New: func() any {
		return collate.New(language.Und, collate.IgnoreCase, collate.Numeric)
	},
}

// Normalize trims text and collapses every run of whitespace to a single
// space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Shingles returns the distinct trigrams of text. Text shorter than three
// runes yields a single shingle padded on the right with spaces. The result
// is ordered case-insensitively with ties broken by byte order.
func Shingles(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}

	n := utf8.RuneCountInString(text)
	if n < Width {
		return []string{text + strings.Repeat(" ", Width-n)}
	}

	runes := []rune(text)
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n-Width+1)
	for i := 0; i < n-Width+1; i++ {
		s := string(runes[i : i+Width])
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	Sort(out)
	return out
}

// Sort orders shingles case-insensitively using locale-aware collation.
func Sort(shingles []string) {
	c := collators.Get().(*collate.Collator)
	defer collators.Put(c)
	sort.Slice(shingles, func(i, j int) bool {
		if cmp := c.CompareString(shingles[i], shingles[j]); cmp != 0 {
			return cmp < 0
		}
		return shingles[i] < shingles[j]
	})
}
