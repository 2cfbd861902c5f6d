package contacts

import "strings"

// SuffixLength is the number of trailing digits compared when matching
// numbers written with and without a country code.
const SuffixLength = 10

// Normalize strips every non-digit character. Input without digits yields "".
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// suffixOf returns the trailing SuffixLength digits of key.
// Keys shorter than SuffixLength have no suffix and only ever match exactly.
func suffixOf(key string) (string, bool) {
	if len(key) < SuffixLength {
		return "", false
	}
	return key[len(key)-SuffixLength:], true
}
