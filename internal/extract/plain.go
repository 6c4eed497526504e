package extract

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Plain returns text files as-is. Invalid UTF-8 is replaced with U+FFFD.
func Plain() Strategy {
	return &fileStrategy{
		name:       "plain",
		exts:       []string{".txt", ".md", ".markdown", ".rst", ".csv", ".log"},
		mediaTypes: []string{"text/plain", "text/markdown", "text/csv"},
		extract: func(_ context.Context, content []byte) (string, error) {
			return extractPlain(content), nil
		},
	}
}

func extractPlain(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\ufffd")
	}
	return string(content)
}
