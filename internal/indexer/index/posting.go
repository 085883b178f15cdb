package index

import (
	"strings"
	"unicode"
)

// Pair is one posting: a shingle occurring in the text of a record.
type Pair struct {
	Shingle  string
	RecordID int64
}

// Fold lower-cases a shingle rune by rune. The rune count is preserved, so a
// folded shingle still fits the fixed-width column.
func Fold(shingle string) string {
	return strings.Map(unicode.ToLower, shingle)
}

// PairsFor returns one pair per shingle for recordID.
func PairsFor(recordID int64, shingles []string) []Pair {
	pairs := make([]Pair, 0, len(shingles))
	for _, s := range shingles {
		pairs = append(pairs, Pair{Shingle: s, RecordID: recordID})
	}
	return pairs
}

// Chunk splits pairs into consecutive groups of at most n. A non-positive n
// returns the input as a single chunk.
func Chunk(pairs []Pair, n int) [][]Pair {
	if len(pairs) == 0 {
		return nil
	}
	if n <= 0 || len(pairs) <= n {
		return [][]Pair{pairs}
	}
	chunks := make([][]Pair, 0, (len(pairs)+n-1)/n)
	for start := 0; start < len(pairs); start += n {
		end := min(start+n, len(pairs))
		chunks = append(chunks, pairs[start:end])
	}
	return chunks
}

// dedupe folds and removes repeated pairs, keeping first occurrence order.
func dedupe(pairs []Pair) []Pair {
	seen := make(map[Pair]struct{}, len(pairs))
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		p.Shingle = Fold(p.Shingle)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// EscapeLike escapes the LIKE metacharacters in s using backslash.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
