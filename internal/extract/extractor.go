// Package extract turns uploaded files and rendered web pages into plain text.
//
// An Extractor holds an ordered list of strategies. The first strategy that
// reports itself applicable to a Source does the extraction.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNoStrategy is returned when no registered strategy accepts a source.
var ErrNoStrategy = errors.New("no extraction strategy for source")

// Source is one unit of content to extract text from.
type Source struct {
	// Filename is the display name; its extension selects file strategies.
	Filename string
	// MediaType is the declared content type, parameters allowed.
	MediaType string
	// URL is set for web sources.
	URL string
	// Content is the raw bytes. For web sources it is the printed PDF.
	Content []byte
	// HTML is the rendered page markup for web sources.
	HTML string
}

// Ext returns the lowercased filename extension including the dot.
func (s *Source) Ext() string {
	return strings.ToLower(filepath.Ext(s.Filename))
}

// BaseMediaType returns the media type without parameters, lowercased.
func (s *Source) BaseMediaType() string {
	mt, _, _ := strings.Cut(s.MediaType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsWeb reports whether the source came from a rendered URL.
func (s *Source) IsWeb() bool {
	return s.URL != "" || s.HTML != ""
}

// Strategy extracts text from the sources it accepts.
type Strategy interface {
	Name() string
	IsApplicable(src *Source) bool
	Extract(ctx context.Context, src *Source) (string, error)
}

// Extractor picks the first applicable strategy.
type Extractor struct {
	strategies []Strategy
}

// New returns an extractor trying strategies in the given order.
func New(strategies ...Strategy) *Extractor {
	return &Extractor{strategies: strategies}
}

// NewExtractor returns the default extractor: LinkedIn and generic web pages,
// then PDF, Word, PowerPoint, Excel, OpenDocument and plain text files.
func NewExtractor() *Extractor {
	return New(
		LinkedIn(),
		Web(),
		PDF(),
		DOCX(),
		PPTX(),
		XLSX(),
		OpenDocument(),
		Plain(),
	)
}

// Strategies returns the registered strategies in order.
func (e *Extractor) Strategies() []Strategy {
	return e.strategies
}

// Select returns the first strategy applicable to src.
func (e *Extractor) Select(src *Source) (Strategy, error) {
	for _, s := range e.strategies {
		if s.IsApplicable(src) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q (%s)", ErrNoStrategy, src.Filename, src.MediaType)
}

// Supports reports whether a file with this name and media type can be extracted.
func (e *Extractor) Supports(filename, mediaType string) bool {
	_, err := e.Select(&Source{Filename: filename, MediaType: mediaType})
	return err == nil
}

// Extract runs the selected strategy. A panic inside a strategy is returned as an error.
func (e *Extractor) Extract(ctx context.Context, src *Source) (text string, err error) {
	s, err := e.Select(src)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%s extraction panicked: %v", s.Name(), r)
		}
	}()
	text, err = s.Extract(ctx, src)
	if err != nil {
		return "", fmt.Errorf("%s extraction: %w", s.Name(), err)
	}
	return text, nil
}

// fileStrategy accepts sources by extension or media type.
type fileStrategy struct {
	name       string
	exts       []string
	mediaTypes []string
	extract    func(ctx context.Context, content []byte) (string, error)
}

func (f *fileStrategy) Name() string { return f.name }

func (f *fileStrategy) IsApplicable(src *Source) bool {
	ext, mt := src.Ext(), src.BaseMediaType()
	for _, e := range f.exts {
		if ext == e {
			return true
		}
	}
	for _, m := range f.mediaTypes {
		if mt == m {
			return true
		}
	}
	return false
}

func (f *fileStrategy) Extract(ctx context.Context, src *Source) (string, error) {
	return f.extract(ctx, src.Content)
}
