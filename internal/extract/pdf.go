package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extracts page text with ledongthuc/pdf and cleans it with CleanPDFText.
func PDF() Strategy {
	return &fileStrategy{
		name:       "pdf",
		exts:       []string{".pdf"},
		mediaTypes: []string{"application/pdf"},
		extract: func(ctx context.Context, content []byte) (string, error) {
			pages, err := pdfPages(ctx, content)
			if err != nil {
				return "", err
			}
			return CleanPDFText(joinPages(pages)), nil
		},
	}
}

// pdfPages returns the plain text of every page, empty for pages without text.
func pdfPages(ctx context.Context, content []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages[i-1] = text
	}
	return pages, nil
}

// joinPages prefixes each page that has text with a "--- Page N ---" marker.
func joinPages(pages []string) string {
	var buf strings.Builder
	for i, text := range pages {
		if strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&buf, "\n--- Page %d ---\n", i+1)
		buf.WriteString(text)
	}
	return strings.TrimSpace(buf.String())
}
