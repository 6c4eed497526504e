package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDefaultPath     = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix     = "ppt/slides/slide"
	odfContentPath      = "content.xml"
)

// DOCX extracts the text runs of a Word document, one line per paragraph.
func DOCX() Strategy {
	return &fileStrategy{
		name:       "docx",
		exts:       []string{".docx"},
		mediaTypes: []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		extract: func(ctx context.Context, content []byte) (string, error) {
			zr, err := openZip(content)
			if err != nil {
				return "", fmt.Errorf("docx: %w", err)
			}
			part := docxMainPart(zr)
			f := findZipFile(zr, part)
			if f == nil {
				return "", fmt.Errorf("docx: %s not found", part)
			}
			return xmlText(f, ooxmlRule)
		},
	}
}

// PPTX extracts the text of every slide in slide order.
func PPTX() Strategy {
	return &fileStrategy{
		name:       "pptx",
		exts:       []string{".pptx"},
		mediaTypes: []string{"application/vnd.openxmlformats-officedocument.presentationml.presentation"},
		extract: func(ctx context.Context, content []byte) (string, error) {
			zr, err := openZip(content)
			if err != nil {
				return "", fmt.Errorf("pptx: %w", err)
			}
			var parts []string
			for _, f := range pptxSlides(zr) {
				if err := ctx.Err(); err != nil {
					return "", err
				}
				text, err := xmlText(f, ooxmlRule)
				if err != nil {
					return "", err
				}
				if text != "" {
					parts = append(parts, text)
				}
			}
			return strings.Join(parts, "\n\n"), nil
		},
	}
}

// OpenDocument extracts paragraphs and headings from ODT, ODP and ODS files.
func OpenDocument() Strategy {
	return &fileStrategy{
		name: "opendocument",
		exts: []string{".odt", ".odp", ".ods"},
		mediaTypes: []string{
			"application/vnd.oasis.opendocument.text",
			"application/vnd.oasis.opendocument.presentation",
			"application/vnd.oasis.opendocument.spreadsheet",
		},
		extract: func(ctx context.Context, content []byte) (string, error) {
			zr, err := openZip(content)
			if err != nil {
				return "", fmt.Errorf("opendocument: %w", err)
			}
			f := findZipFile(zr, odfContentPath)
			if f == nil {
				return "", fmt.Errorf("opendocument: %s not found", odfContentPath)
			}
			return xmlText(f, odfRule)
		},
	}
}

// xmlTextRule says which elements carry text and which end a paragraph,
// by local name.
type xmlTextRule struct {
	text      map[string]bool
	paragraph map[string]bool
	space     map[string]bool
}

var (
	// w:t and a:t runs inside w:p and a:p paragraphs.
	ooxmlRule = xmlTextRule{
		text:      map[string]bool{"t": true},
		paragraph: map[string]bool{"p": true},
		space:     map[string]bool{"tab": true, "br": true},
	}
	// text:p and text:h carry all their descendant text, spans included.
	odfRule = xmlTextRule{
		text:      map[string]bool{"p": true, "h": true},
		paragraph: map[string]bool{"p": true, "h": true},
		space:     map[string]bool{"s": true, "tab": true, "line-break": true},
	}
)

// xmlText streams one zip entry and returns its paragraphs, trimmed, one per line.
func xmlText(f *zip.File, rule xmlTextRule) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	dec.Strict = false
	var (
		paragraphs []string
		current    strings.Builder
		depth      int
	)
	flush := func() {
		if p := strings.Join(strings.Fields(current.String()), " "); p != "" {
			paragraphs = append(paragraphs, p)
		}
		current.Reset()
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", f.Name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if rule.text[t.Name.Local] {
				depth++
			}
			if depth > 0 && rule.space[t.Name.Local] {
				current.WriteByte(' ')
			}
		case xml.EndElement:
			if rule.text[t.Name.Local] && depth > 0 {
				depth--
			}
			if rule.paragraph[t.Name.Local] {
				flush()
			}
		case xml.CharData:
			if depth > 0 {
				current.Write(t)
			}
		}
	}
	flush()
	return strings.Join(paragraphs, "\n"), nil
}

func openZip(content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip: %w", err)
	}
	return zr, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// docxMainPart reads [Content_Types].xml for the main document part, which is
// not always word/document.xml.
func docxMainPart(zr *zip.Reader) string {
	f := findZipFile(zr, contentTypesPath)
	if f == nil {
		return docxDefaultPath
	}
	rc, err := f.Open()
	if err != nil {
		return docxDefaultPath
	}
	defer rc.Close()

	var types struct {
		Overrides []struct {
			PartName    string `xml:"PartName,attr"`
			ContentType string `xml:"ContentType,attr"`
		} `xml:"Override"`
	}
	if err := xml.NewDecoder(rc).Decode(&types); err != nil {
		return docxDefaultPath
	}
	for _, o := range types.Overrides {
		if o.ContentType == docxMainContentType {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return docxDefaultPath
}

// pptxSlides returns ppt/slides/slideN.xml entries ordered by N.
func pptxSlides(zr *zip.Reader) []*zip.File {
	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, pptxSlidePrefix) || path.Ext(f.Name) != ".xml" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(f.Name, pptxSlidePrefix), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{n, f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })
	out := make([]*zip.File, len(slides))
	for i, s := range slides {
		out[i] = s.f
	}
	return out
}
