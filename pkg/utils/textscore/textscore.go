// Package textscore provides lexical relevance scoring and snippet
// extraction over note title and content.
//
// This is a deliberately simple term-frequency scorer rather than a real
// inverted full-text index. Both repository backends use it: the corpus of a
// personal knowledge base is small enough that scoring every note per query
// is acceptable, and it keeps ranking identical across backends.
package textscore

import (
	"math"
	"strings"
	"unicode"
)

const (
	titleWeight   = 3.0
	snippetRadius = 80
)

// Tokenize splits text into lowercased alphanumeric terms.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Score computes a lexical relevance score of a note (title + content)
// against a query. Returns 0 when no query term matches.
func Score(query, title, content string) float64 {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return 0
	}

	titleFreq := termFreq(Tokenize(title))
	bodyTokens := Tokenize(content)
	bodyFreq := termFreq(bodyTokens)

	var score float64
	for _, term := range terms {
		score += titleWeight * float64(titleFreq[term])
		score += float64(bodyFreq[term])
	}
	if score == 0 {
		return 0
	}

	// Dampen long documents so raw term counts do not dominate.
	return score / (1 + math.Log1p(float64(len(bodyTokens))))
}

// Snippet returns a short context window around the first query-term match
// in content. Falls back to the head of the content when nothing matches.
// All offsets are in runes so the window never splits a multibyte character.
func Snippet(query, content string) string {
	runes := []rune(content)
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	pos := -1
	for _, term := range Tokenize(query) {
		if i := indexRunes(lower, []rune(term)); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	if pos < 0 {
		pos = 0
	}

	start := pos - snippetRadius
	if start < 0 {
		start = 0
	}
	end := pos + snippetRadius
	if end > len(runes) {
		end = len(runes)
	}

	snippet := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(runes) {
		snippet += "…"
	}
	return snippet
}

// indexRunes is strings.Index over rune slices: lowering rune by rune keeps
// the match offset aligned with the original text even when case conversion
// changes byte lengths.
func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		j := 0
		for j < len(needle) && haystack[i+j] == needle[j] {
			j++
		}
		if j == len(needle) {
			return i
		}
	}
	return -1
}

func termFreq(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}
	return freq
}
