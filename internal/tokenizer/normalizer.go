package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kljensen/snowball"
	"golang.org/x/sync/singleflight"
)

// Normalizer maps a lower-cased word to its canonical form. Implementations
// satisfy dictionary.Normalizer as well.
type Normalizer interface {
	Normalize(word string) string
}

// NormalizerFunc adapts a function to the Normalizer interface.
type NormalizerFunc func(word string) string

func (f NormalizerFunc) Normalize(word string) string {
	return f(word)
}

var (
	// Identity returns the word unchanged.
	Identity Normalizer = NormalizerFunc(func(word string) string { return word })
	// Lowercase lower-cases the word.
	Lowercase Normalizer = NormalizerFunc(strings.ToLower)
)

// Snowball stems words with the Snowball algorithm for one language.
type Snowball struct {
	language string
}

// NewSnowball returns a Snowball stemmer. Supported languages are those of
// github.com/kljensen/snowball: english, spanish, french, russian, swedish,
// norwegian and hungarian.
func NewSnowball(language string) (*Snowball, error) {
	if language == "" {
		language = "english"
	}
	if _, err := snowball.Stem("test", language, true); err != nil {
		return nil, fmt.Errorf("snowball stemmer for %q: %w", language, err)
	}
	return &Snowball{language: language}, nil
}

// Normalize returns the stem of word, or word itself if stemming fails or
// yields nothing.
func (s *Snowball) Normalize(word string) string {
	stemmed, err := snowball.Stem(word, s.language, true)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}

// Suffix is a light suffix-stripping stemmer. It is cheaper and more
// conservative than Snowball and never produces a stem shorter than the
// rule's minimum length.
var Suffix Normalizer = NormalizerFunc(stem)

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}

// Chain applies normalizers left to right.
func Chain(normalizers ...Normalizer) Normalizer {
	return NormalizerFunc(func(word string) string {
		for _, n := range normalizers {
			word = n.Normalize(word)
		}
		return word
	})
}

// Cached memoizes an underlying Normalizer. Each Cached owns its cache, so
// unrelated tokenizers never share state. Concurrent misses for the same
// word run the underlying normalizer once.
type Cached struct {
	next  Normalizer
	mu    sync.RWMutex
	cache map[string]string
	group singleflight.Group
}

// NewCached wraps next with a per-instance cache.
func NewCached(next Normalizer) *Cached {
	return &Cached{
		next:  next,
		cache: make(map[string]string),
	}
}

func (c *Cached) Normalize(word string) string {
	c.mu.RLock()
	normalized, ok := c.cache[word]
	c.mu.RUnlock()
	if ok {
		return normalized
	}
	v, _, _ := c.group.Do(word, func() (interface{}, error) {
		normalized := c.next.Normalize(word)
		c.mu.Lock()
		c.cache[word] = normalized
		c.mu.Unlock()
		return normalized, nil
	})
	return v.(string)
}

// Len returns the number of cached words.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
