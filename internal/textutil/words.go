package textutil

import (
	"strings"
	"unicode"
)

// WordCount counts whitespace-separated words that contain at least one
// letter or digit, so stray punctuation and markdown rules are not counted.
func WordCount(text string) int {
	count := 0
	for _, field := range strings.Fields(text) {
		if strings.IndexFunc(field, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) >= 0 {
			count++
		}
	}
	return count
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
