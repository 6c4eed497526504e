package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// articleSelectors are tried in order; the first match is the page's main content.
var articleSelectors = []string{
	"article",
	`[data-testid="storyContent"]`,
	"main",
	".content",
	"#content",
	".post-content",
	".entry-content",
	".article-content",
	".story-content",
	".news-content",
	".blog-content",
	".page-content",
}

type webStrategy struct{}

// Web extracts the main content of a rendered page, falling back to the body text.
func Web() Strategy { return webStrategy{} }

func (webStrategy) Name() string { return "web" }

func (webStrategy) IsApplicable(src *Source) bool { return src.HTML != "" }

func (webStrategy) Extract(_ context.Context, src *Source) (string, error) {
	doc, err := parseHTML(src.HTML)
	if err != nil {
		return "", err
	}
	for _, sel := range articleSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return innerText(found), nil
		}
	}
	return innerText(doc.Find("body")), nil
}

func parseHTML(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}
