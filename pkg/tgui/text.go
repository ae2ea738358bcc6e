package tgui

import "unicode/utf8"

// Len counts characters the way the bot API does for its limits.
func Len(s string) int { return utf8.RuneCountInString(s) }

// TruncRunes returns s cut to at most n runes, ending in "…" when anything
// was removed. The ellipsis is counted in n.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	count := 0
	for i := range s {
		if count == n-1 {
			return s[:i] + "…"
		}
		count++
	}
	return s
}
