package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPrefixLen caps completion prefixes, in runes.
const MaxPrefixLen = 60

// IsValidToken reports whether s can be stored in a vocabulary: non-empty,
// without whitespace or control characters.
func IsValidToken(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// ValidTokens returns the tokens of in that pass IsValidToken, in order.
func ValidTokens(in []string) []string {
	out := make([]string, 0, len(in))
	for _, tok := range in {
		if IsValidToken(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// SplitTokens splits a line on whitespace.
func SplitTokens(line string) []string {
	return ValidTokens(strings.Fields(line))
}

// IsValidPrefix checks if a completion prefix should be processed
func IsValidPrefix(s string) bool {
	return IsValidToken(s) && utf8.RuneCountInString(s) <= MaxPrefixLen
}
