// Package chunking splits extracted text into overlapping fragments sized for embedding.
package chunking

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidParams is returned when size and overlap do not satisfy size > overlap >= 0.
var ErrInvalidParams = errors.New("chunk size must be greater than overlap and overlap must be non-negative")

// DefaultSeparators are tried in order; the first one present in a segment splits it.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// Span is a half-open byte range [Start, End) into the chunked text.
type Span struct {
	Start int
	End   int
}

// Text returns the substring of text covered by the span.
func (s Span) Text(text string) string {
	return text[s.Start:s.End]
}

// Chunker splits text recursively on separators and merges the pieces into
// chunks of at most Size runes, repeating up to Overlap runes between neighbours.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithCharacterFallback lets a run with no separator that is longer than the
// chunk size be cut between characters instead of emitted whole.
func WithCharacterFallback() Option {
	return func(c *Chunker) {
		c.separators = append(c.separators, "")
	}
}

// WithSeparators replaces the separator list.
func WithSeparators(seps ...string) Option {
	return func(c *Chunker) {
		c.separators = append([]string(nil), seps...)
	}
}

// NewChunker returns a chunker for the given size and overlap, both in runes.
func NewChunker(size, overlap int, opts ...Option) (*Chunker, error) {
	if overlap < 0 || size <= overlap {
		return nil, fmt.Errorf("size=%d overlap=%d: %w", size, overlap, ErrInvalidParams)
	}
	c := &Chunker{
		size:       size,
		overlap:    overlap,
		separators: append([]string(nil), DefaultSeparators...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Size returns the maximum chunk length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the maximum overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunks of text in order. Whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	spans := c.Spans(text)
	if len(spans) == 0 {
		return nil
	}
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text(text)
	}
	return out
}

// Spans returns the byte ranges of the chunks of text in order. Every chunk is
// an exact substring of text; chunks made only of whitespace are dropped.
func (c *Chunker) Spans(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	raw := c.split(text, 0, len(text), c.separators)
	out := raw[:0]
	for _, s := range raw {
		if strings.TrimSpace(s.Text(text)) != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Chunker) split(text string, start, end int, seps []string) []Span {
	segment := text[start:end]
	sep, rest, ok := pickSeparator(segment, seps)
	if !ok {
		return []Span{{Start: start, End: end}}
	}

	var out, good []Span
	for _, p := range pieces(segment, start, sep) {
		if runeLen(text, p) <= c.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(text, good)...)
			good = nil
		}
		out = append(out, c.split(text, p.Start, p.End, rest)...)
	}
	if len(good) > 0 {
		out = append(out, c.merge(text, good)...)
	}
	return out
}

// merge packs consecutive pieces into windows of at most c.size runes. After
// each emitted window, pieces are dropped from the front until what remains
// fits in c.overlap and leaves room for the next piece.
func (c *Chunker) merge(text string, parts []Span) []Span {
	var out []Span
	var window []Span
	total := 0
	for _, p := range parts {
		l := runeLen(text, p)
		if len(window) > 0 && total+l > c.size {
			out = append(out, Span{Start: window[0].Start, End: window[len(window)-1].End})
			for len(window) > 0 && (total > c.overlap || (total+l > c.size && total > 0)) {
				total -= runeLen(text, window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += l
	}
	if len(window) > 0 {
		out = append(out, Span{Start: window[0].Start, End: window[len(window)-1].End})
	}
	return out
}

func pickSeparator(segment string, seps []string) (string, []string, bool) {
	for i, s := range seps {
		if s == "" || strings.Contains(segment, s) {
			return s, seps[i+1:], true
		}
	}
	return "", nil, false
}

// pieces cuts segment (which starts at byte offset base) after each occurrence
// of sep, keeping the separator on the preceding piece. An empty sep cuts
// between runes.
func pieces(segment string, base int, sep string) []Span {
	var out []Span
	if sep == "" {
		for i := 0; i < len(segment); {
			_, w := utf8.DecodeRuneInString(segment[i:])
			out = append(out, Span{Start: base + i, End: base + i + w})
			i += w
		}
		return out
	}
	pos := 0
	for {
		idx := strings.Index(segment[pos:], sep)
		if idx < 0 {
			break
		}
		end := pos + idx + len(sep)
		out = append(out, Span{Start: base + pos, End: base + end})
		pos = end
	}
	if pos < len(segment) {
		out = append(out, Span{Start: base + pos, End: base + len(segment)})
	}
	return out
}

func runeLen(text string, s Span) int {
	return utf8.RuneCountInString(text[s.Start:s.End])
}
