package embedding

import (
	"strings"
	"unicode"
)

// Special token ids of the MPNet vocabulary.
const (
	tokenCLS   = 0
	tokenPad   = 1
	tokenSEP   = 2
	vocabFloor = 1000
	vocabSize  = 30527
)

// Tokenizer produces fixed-length model inputs for a sentence-transformer.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64)
}

// SimpleTokenizer maps lowercase words to hashed ids inside the vocabulary range.
// It stands in for a WordPiece vocabulary when none is shipped next to the model.
type SimpleTokenizer struct{}

// Tokenize wraps the words of text in CLS/SEP and pads to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens < 2 {
		maxTokens = 384
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	for i := range inputIDs {
		inputIDs[i] = tokenPad
	}

	inputIDs[0] = tokenCLS
	attentionMask[0] = 1
	pos := 1
	for _, word := range SplitWords(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(vocabFloor + HashString(word)%(vocabSize-vocabFloor))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = tokenSEP
	attentionMask[pos] = 1
	return inputIDs, attentionMask
}

// SplitWords splits text into words and punctuation marks.
func SplitWords(text string) []string {
	var words []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r):
			flush()
			words = append(words, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return words
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := uint32(2166136261)
	for _, c := range s {
		h ^= uint32(c)
		h *= 16777619
	}
	return int(h & 0x7fffffff)
}
