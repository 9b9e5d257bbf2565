package textutil

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// minTokenRunes is the shortest alphabetic token kept.
const minTokenRunes = 2

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {},
	"by": {}, "for": {}, "if": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "so": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {},
	"we": {}, "with": {}, "you": {},
}

// Fingerprint represents a term-frequency vector for text similarity comparison.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint creates a fingerprint from the provided text.
// Returns nil if the text produces no valid tokens.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &Fingerprint{
		tokens: counts,
		norm:   math.Sqrt(norm),
	}
}

// TokenCount returns the number of unique tokens in the fingerprint.
func (f *Fingerprint) TokenCount() int {
	if f == nil {
		return 0
	}
	return len(f.tokens)
}

// Fold returns the NFKC-normalized, case-folded form of s.
func Fold(s string) string {
	// A Caser carries transform state and must not be shared.
	return cases.Fold().String(norm.NFKC.String(s))
}

// Tokenize splits text into folded terms.
func Tokenize(text string) []string {
	folded := Fold(text)
	terms := make([]string, 0, len(folded)/4)
	var run []rune
	flush := func() {
		if len(run) == 0 {
			return
		}
		terms = appendRun(terms, run)
		run = run[:0]
	}
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			// Script changes split a run so "GPT4は" yields "gpt4" and "は".
			if len(run) > 0 && isCJK(run[len(run)-1]) != isCJK(r) {
				flush()
			}
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()
	return terms
}

func appendRun(terms []string, run []rune) []string {
	if isCJK(run[0]) {
		if len(run) == 1 {
			return append(terms, string(run))
		}
		for i := 0; i+1 < len(run); i++ {
			terms = append(terms, string(run[i:i+2]))
		}
		return terms
	}
	if len(run) < minTokenRunes {
		return terms
	}
	token := string(run)
	if _, stop := stopWords[token]; stop {
		return terms
	}
	return append(terms, strings.Clone(token))
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
