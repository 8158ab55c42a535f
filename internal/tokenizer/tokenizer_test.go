package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
)

func TestTokenizeDefaults(t *testing.T) {
	tok, err := New(Options{})
	require.NoError(t, err)

	got := tok.Tokenize("The Cat, the   HAT; 42 times!")
	assert.Equal(t, []string{"the", "cat", "the", "hat", "42", "times"}, got)
}

func TestTokenizeCustomPattern(t *testing.T) {
	tok, err := New(Options{Pattern: `\s*,\s*`})
	require.NoError(t, err)
	assert.Equal(t, []string{"new york", "paris"}, tok.Tokenize("New York , Paris,"))
}

func TestInvalidPattern(t *testing.T) {
	_, err := New(Options{Pattern: `(`})
	assert.Error(t, err)
}

func TestStopWordsRequiredWhenEnabled(t *testing.T) {
	_, err := New(Options{RemoveStopWords: true})
	assert.ErrorIs(t, err, ErrMissingStopWords)
}

func TestStopWordRemoval(t *testing.T) {
	tok, err := New(Options{RemoveStopWords: true, StopWords: DefaultStopWords()})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "sat", "mat"}, tok.Tokenize("The cat sat on the mat"))
}

func TestStopWordsIgnoredWhenDisabled(t *testing.T) {
	tok, err := New(Options{StopWords: DefaultStopWords()})
	require.NoError(t, err)
	assert.Contains(t, tok.Tokenize("the cat"), "the")
}

func TestStopWordsCheckedBeforeStemming(t *testing.T) {
	tok, err := New(Options{
		RemoveStopWords: true,
		StopWords:       map[string]struct{}{"cats": {}},
		Normalizer:      Suffix,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"dog"}, tok.Tokenize("cats dogs"))
}

func TestMinLength(t *testing.T) {
	tok, err := New(Options{MinLength: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "run"}, tok.Tokenize("a go run x"))
}

func TestSuffixStemmer(t *testing.T) {
	cases := map[string]string{
		"cats":      "cat",
		"searching": "search",
		"indexes":   "index",
		"running":   "runn",
		"is":        "is",
	}
	for word, want := range cases {
		assert.Equal(t, want, Suffix.Normalize(word), word)
	}
}

func TestSnowballStemmer(t *testing.T) {
	s, err := NewSnowball("english")
	require.NoError(t, err)
	assert.Equal(t, "run", s.Normalize("running"))
	assert.Equal(t, "cat", s.Normalize("cats"))

	tok, err := New(Options{Normalizer: s})
	require.NoError(t, err)
	assert.Equal(t, []string{"run", "cat"}, tok.Tokenize("Running cats"))
}

func TestSnowballUnknownLanguage(t *testing.T) {
	_, err := NewSnowball("klingon")
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	n := Chain(NormalizerFunc(strings.TrimSpace), Lowercase, Suffix)
	assert.Equal(t, "cat", n.Normalize("  CATS "))
}

func TestCachedIsPerInstance(t *testing.T) {
	var calls atomic.Int32
	counting := NormalizerFunc(func(w string) string {
		calls.Add(1)
		return strings.ToUpper(w)
	})

	a := NewCached(counting)
	b := NewCached(counting)
	assert.Equal(t, "GO", a.Normalize("go"))
	assert.Equal(t, "GO", a.Normalize("go"))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 0, b.Len())

	assert.Equal(t, "GO", b.Normalize("go"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedConcurrent(t *testing.T) {
	c := NewCached(Suffix)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, w := range []string{"cats", "dogs", "searching"} {
				c.Normalize(w)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, "search", c.Normalize("searching"))
}

func TestReadStopWords(t *testing.T) {
	words, err := ReadStopWords(strings.NewReader("# comment\nThe\n\n  and \n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"the": {}, "and": {}}, words)
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stop.txt")
	require.NoError(t, os.WriteFile(path, []byte("quick\n"), 0o644))

	tok, err := FromConfig(config.TokenizerConfig{
		Stemmer:         "snowball",
		Language:        "english",
		RemoveStopWords: true,
		StopWordsFile:   path,
		CacheNormalized: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "brown", "fox", "jump"}, tok.Tokenize("The quick brown fox jumps"))

	tok, err = FromConfig(config.TokenizerConfig{RemoveStopWords: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"brown", "foxes"}, tok.Tokenize("the brown foxes"))

	_, err = FromConfig(config.TokenizerConfig{Stemmer: "porter9"})
	assert.Error(t, err)

	_, err = FromConfig(config.TokenizerConfig{RemoveStopWords: true, StopWordsFile: filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
