package search

import (
	"strings"
	"unicode/utf8"
)

// DefaultProximityWindow is how close, in characters, two matched query
// words must be to earn the proximity bonus.
const DefaultProximityWindow = 50

const (
	wordMatchScore = 1.0
	phraseBonus    = 0.5
	proximityBonus = 0.3
)

// KeywordScore is the lexical score of one text against a query.
type KeywordScore struct {
	Score   float64
	Matched int
	Tokens  int
}

// AllMatched reports whether every query token was found.
func (k KeywordScore) AllMatched() bool {
	return k.Tokens > 0 && k.Matched == k.Tokens
}

// Scorer computes a keyword score for text.
type Scorer interface {
	Score(query, text string) (KeywordScore, error)
}

// SubstringScorer scores by case-insensitive substring matching of
// whitespace-separated query tokens. No stemming; repeated tokens count
// each time they appear in the query.
type SubstringScorer struct {
	ProximityWindow int
}

// Score adds 1 for every query token found in text. For multi-token queries
// it adds 0.5 when the whole query appears, or else 0.3 once when two found
// tokens occur within the proximity window. The sum is divided by the
// number of tokens.
func (s SubstringScorer) Score(query, text string) (KeywordScore, error) {
	queryLower := strings.ToLower(query)
	tokens := strings.Fields(queryLower)
	if len(tokens) == 0 {
		return KeywordScore{}, nil
	}
	textLower := strings.ToLower(text)

	ks := KeywordScore{Tokens: len(tokens)}
	var found [][]int
	for _, tok := range tokens {
		if !strings.Contains(textLower, tok) {
			continue
		}
		ks.Matched++
		ks.Score += wordMatchScore
		found = append(found, runeOffsets(textLower, tok))
	}

	if len(tokens) > 1 {
		switch {
		case strings.Contains(textLower, queryLower):
			ks.Score += phraseBonus
		case ks.Matched >= 2 && s.anyWithinWindow(found):
			ks.Score += proximityBonus
		}
	}
	ks.Score /= float64(len(tokens))
	return ks, nil
}

// anyWithinWindow reports whether occurrences of two different found tokens
// lie within the proximity window of each other.
func (s SubstringScorer) anyWithinWindow(found [][]int) bool {
	window := s.ProximityWindow
	if window <= 0 {
		window = DefaultProximityWindow
	}
	for i := range found {
		for j := i + 1; j < len(found); j++ {
			for _, a := range found[i] {
				for _, b := range found[j] {
					if d := a - b; d <= window && d >= -window {
						return true
					}
				}
			}
		}
	}
	return false
}

// runeOffsets returns the character offset of every occurrence of needle
// in haystack, overlapping occurrences included.
func runeOffsets(haystack, needle string) []int {
	var offsets []int
	byteStart, runeStart := 0, 0
	for {
		i := strings.Index(haystack[byteStart:], needle)
		if i < 0 {
			return offsets
		}
		runeStart += utf8.RuneCountInString(haystack[byteStart : byteStart+i])
		byteStart += i
		offsets = append(offsets, runeStart)

		_, size := utf8.DecodeRuneInString(haystack[byteStart:])
		byteStart += size
		runeStart++
	}
}
