package search

import (
	"strings"
	"unicode/utf8"
)

// Highlight shortens content to at most maxLen characters for display,
// cutting at the last space when one is near, and appends "...".
// A maxLen of zero or less returns content unchanged.
func Highlight(content string, maxLen int) string {
	content = strings.Join(strings.Fields(content), " ")
	if maxLen <= 0 || utf8.RuneCountInString(content) <= maxLen {
		return content
	}
	runes := []rune(content)[:maxLen]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i > 0 && utf8.RuneCountInString(cut[:i]) >= maxLen*3/4 {
		cut = cut[:i]
	}
	return cut + "..."
}
