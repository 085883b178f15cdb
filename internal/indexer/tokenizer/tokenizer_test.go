package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShingles(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"only whitespace", " \t\n ", nil},
		{"single rune padded", "a", []string{"a  "}},
		{"two runes padded", "ab", []string{"ab "}},
		{"exactly three", "abc", []string{"abc"}},
		{"sliding window", "abcd", []string{"abc", "bcd"}},
		{"duplicates collapse", "aaaa", []string{"aaa"}},
		{"case-insensitive order", "aXbB", []string{"aXb", "XbB"}},
		{"trimmed before padding", "  ab  ", []string{"ab "}},
		{"multibyte runes", "čaj", []string{"čaj"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Shingles(tc.in))
		})
	}
}

func TestShinglesCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, Shingles("a b"), Shingles("a   b"))
	assert.Equal(t, Shingles("a b"), Shingles("a\t\nb"))
	assert.Equal(t, []string{"a b"}, Shingles("a   b"))
}

func TestShinglesCaseTiesUseByteOrder(t *testing.T) {
	assert.Equal(t, []string{"ABC", "abc", "bcA", "cAB"}, Shingles("abcABC"))
}

func TestShinglesCount(t *testing.T) {
	text := "the quick brown fox"
	got := Shingles(text)
	assert.LessOrEqual(t, len(got), len([]rune(text))-2)
	for _, s := range got {
		assert.Equal(t, Width, len([]rune(s)), s)
		assert.True(t, strings.Contains(text, s), s)
	}
}

func TestShinglesDeterministic(t *testing.T) {
	text := "Oliver Jones, 12 Baker Street, order #1042"
	first := Shingles(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Shingles(text))
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a \t b\n\nc "))
	assert.Equal(t, "", Normalize("   "))
}
