package embedding

import "strings"

// CLIP special token IDs.
const (
	tokenStart = 49406
	tokenEnd   = 49407
	vocabSize  = 49152
)

// Tokenizer produces padded token IDs for the CLIP text encoder.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) []int64
}

// SimpleTokenizer is a lowercase word-split tokenizer with hash-based token
// IDs. It does not reproduce the BPE vocabulary of a real CLIP checkpoint, but
// it is deterministic and keeps the wire shape the text model expects.
type SimpleTokenizer struct{}

// Tokenize returns input IDs of length maxTokens: start token, one ID per
// word, end token, zero padding.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) []int64 {
	if maxTokens <= 0 {
		maxTokens = 77
	}
	inputIDs := make([]int64, maxTokens)
	inputIDs[0] = tokenStart

	pos := 1
	for _, word := range SplitWords(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % vocabSize)
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = tokenEnd
	}
	return inputIDs
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	var words []string
	word := ""
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			if word != "" {
				words = append(words, word)
				word = ""
			}
		} else {
			word += string(r)
		}
	}
	if word != "" {
		words = append(words, word)
	}
	return words
}

// HashString returns a deterministic non-negative hash for use as a token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
