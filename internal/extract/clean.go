package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	caseBoundary  = regexp.MustCompile(`([a-z])([A-Z])`)
	hyphenBreak   = regexp.MustCompile(`(\pL)- `)
)

// CleanPDFText repairs common PDF extraction artifacts: whitespace runs become
// one space, a hyphen that split a word across lines is dropped, and a space
// is inserted where a lowercase letter runs into an uppercase one.
func CleanPDFText(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = hyphenBreak.ReplaceAllString(text, "$1")
	text = caseBoundary.ReplaceAllString(text, "$1 $2")
	return strings.TrimSpace(text)
}

// NormalizeWebText collapses spaces inside lines, trims every line, and keeps
// at most one blank line between paragraphs.
func NormalizeWebText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Elements that end a paragraph or a line in rendered text.
var (
	paragraphElements = map[string]bool{
		"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"section": true, "article": true, "blockquote": true, "pre": true, "table": true,
		"ul": true, "ol": true, "main": true, "aside": true, "figure": true,
	}
	lineElements = map[string]bool{
		"div": true, "li": true, "tr": true, "header": true, "footer": true, "nav": true,
		"dt": true, "dd": true, "figcaption": true, "form": true,
	}
	hiddenElements = map[string]bool{
		"script": true, "style": true, "noscript": true, "template": true, "svg": true,
		"iframe": true, "head": true,
	}
)

// innerText approximates the browser's innerText for the selected nodes:
// hidden elements are skipped and block elements break lines.
func innerText(sel *goquery.Selection) string {
	w := &textWriter{}
	sel.Each(func(_ int, s *goquery.Selection) {
		w.walk(s)
		w.lineBreak(2)
	})
	return NormalizeWebText(w.b.String())
}

type textWriter struct {
	b       strings.Builder
	pending int
}

func (w *textWriter) lineBreak(n int) {
	if n > w.pending {
		w.pending = n
	}
}

func (w *textWriter) text(s string) {
	s = whitespaceRun.ReplaceAllString(s, " ")
	if strings.TrimSpace(s) == "" {
		if w.pending == 0 && w.b.Len() > 0 {
			w.b.WriteByte(' ')
		}
		return
	}
	if w.pending > 0 && w.b.Len() > 0 {
		w.b.WriteString(strings.Repeat("\n", w.pending))
	}
	w.pending = 0
	w.b.WriteString(s)
}

func (w *textWriter) walk(sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch {
		case name == "#text":
			w.text(s.Text())
		case hiddenElements[name]:
		case name == "br":
			w.lineBreak(1)
		case paragraphElements[name]:
			w.lineBreak(2)
			w.walk(s)
			w.lineBreak(2)
		case lineElements[name]:
			w.lineBreak(1)
			w.walk(s)
			w.lineBreak(1)
		case name == "td" || name == "th":
			w.walk(s)
			w.text(" ")
		default:
			w.walk(s)
		}
	})
}
