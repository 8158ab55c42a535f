package tokenizer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
)

var englishStopWords = []string{
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
}

// DefaultStopWords returns a fresh copy of the built-in English stop-word
// set.
func DefaultStopWords() map[string]struct{} {
	set := make(map[string]struct{}, len(englishStopWords))
	for _, w := range englishStopWords {
		set[w] = struct{}{}
	}
	return set
}

// ReadStopWords reads one stop word per line. Blank lines and lines starting
// with '#' are skipped; words are lower-cased.
func ReadStopWords(r io.Reader) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[strings.ToLower(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stop words: %w", err)
	}
	return set, nil
}

// FromConfig builds a Tokenizer from the tokenizer section of the
// application config. When stop-word removal is enabled without a file, the
// built-in English set is used.
func FromConfig(cfg config.TokenizerConfig) (*Tokenizer, error) {
	var normalizer Normalizer
	stemming := true
	switch cfg.Stemmer {
	case "snowball":
		s, err := NewSnowball(cfg.Language)
		if err != nil {
			return nil, err
		}
		normalizer = s
	case "suffix":
		normalizer = Suffix
	case "", "none":
		normalizer = Identity
		stemming = false
	default:
		return nil, fmt.Errorf("unknown stemmer %q", cfg.Stemmer)
	}
	if cfg.CacheNormalized && stemming {
		normalizer = NewCached(normalizer)
	}

	opts := Options{
		Pattern:         cfg.Pattern,
		RemoveStopWords: cfg.RemoveStopWords,
		Normalizer:      normalizer,
		MinLength:       cfg.MinLength,
	}
	if cfg.RemoveStopWords {
		if cfg.StopWordsFile != "" {
			f, err := os.Open(cfg.StopWordsFile)
			if err != nil {
				return nil, fmt.Errorf("opening stop words file: %w", err)
			}
			defer f.Close()
			words, err := ReadStopWords(f)
			if err != nil {
				return nil, err
			}
			opts.StopWords = words
		} else {
			opts.StopWords = DefaultStopWords()
		}
	}
	return New(opts)
}
