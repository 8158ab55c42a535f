// Package tokenizer turns raw text into the normalized token sequences fed
// to a dictionary. It splits on a configurable pattern, lower-cases, drops
// stop-words and applies a pluggable Normalizer (stemming).
package tokenizer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultPattern splits on any run of characters that are neither letters
// nor digits.
const DefaultPattern = `[^\p{L}\p{N}]+`

// ErrMissingStopWords is returned by New when stop-word removal is enabled
// without a stop-word set.
var ErrMissingStopWords = errors.New("stop-word removal enabled without stop words")

// Options controls how a Tokenizer splits and filters text.
type Options struct {
	// Pattern is the split regular expression. Empty means DefaultPattern.
	Pattern string
	// RemoveStopWords drops any lower-cased word found in StopWords.
	RemoveStopWords bool
	StopWords       map[string]struct{}
	// Normalizer is applied to every surviving word. Nil keeps the word as is.
	Normalizer Normalizer
	// MinLength drops words shorter than this many bytes before
	// normalization.
	MinLength int
}

// Tokenizer is safe for concurrent use if its Normalizer is.
type Tokenizer struct {
	split      *regexp.Regexp
	stopWords  map[string]struct{}
	normalizer Normalizer
	minLength  int
}

// New validates opts and builds a Tokenizer.
func New(opts Options) (*Tokenizer, error) {
	if opts.RemoveStopWords && opts.StopWords == nil {
		return nil, ErrMissingStopWords
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling split pattern %q: %w", pattern, err)
	}
	t := &Tokenizer{
		split:      re,
		normalizer: opts.Normalizer,
		minLength:  opts.MinLength,
	}
	if opts.RemoveStopWords {
		t.stopWords = opts.StopWords
	}
	if t.normalizer == nil {
		t.normalizer = Identity
	}
	return t, nil
}

// Tokenize breaks text into lower-cased, stop-word filtered, normalized
// tokens in their original order.
func (t *Tokenizer) Tokenize(text string) []string {
	words := t.split.Split(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" || len(word) < t.minLength {
			continue
		}
		if _, isStop := t.stopWords[word]; isStop {
			continue
		}
		normalized := t.normalizer.Normalize(word)
		if normalized == "" {
			continue
		}
		tokens = append(tokens, normalized)
	}
	return tokens
}

// Normalize applies the tokenizer's normalizer to a single lower-cased word.
func (t *Tokenizer) Normalize(word string) string {
	return t.normalizer.Normalize(strings.ToLower(word))
}
