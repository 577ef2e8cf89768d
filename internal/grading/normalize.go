package grading

import (
	"math"
	"unicode"
)

// NormalizeName casefolds and drops whitespace and punctuation so that
// "Criminal Law", "criminal-law" and "CriminalLaw" compare equal.
func NormalizeName(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r), unicode.IsPunct(r):
			// skip
		default:
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// Round2 rounds half away from zero to two decimals. Every intermediate score
// goes through it before being added to a running total.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
