package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Vector space models represent each document as a sparse vector of term
        weights. Term frequency counts how often a word appears in one document,
        while inverse document frequency discounts words that appear everywhere.
        Cosine similarity between two weighted vectors ranks how alike the
        documents are regardless of their length.`,
	"long": strings.Repeat(`Information retrieval systems combine tokenization, stemming,
        and stop word removal to normalize text into comparable terms. A shared
        dictionary assigns every distinct term a stable identifier and tracks how
        many documents contain it. `, 20),
}

func benchTokenizer(b *testing.B, normalizer Normalizer) *Tokenizer {
	b.Helper()
	tok, err := New(Options{
		RemoveStopWords: true,
		StopWords:       DefaultStopWords(),
		Normalizer:      normalizer,
	})
	if err != nil {
		b.Fatal(err)
	}
	return tok
}

func BenchmarkTokenize(b *testing.B) {
	tok := benchTokenizer(b, Chain(Lowercase, Suffix))
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				_ = tok.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	tok := benchTokenizer(b, Chain(Lowercase, Suffix))
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tok.Tokenize(text)
		}
	})
}

func BenchmarkNormalizers(b *testing.B) {
	snow, err := NewSnowball("english")
	if err != nil {
		b.Fatal(err)
	}
	words := []string{
		"running", "distributed", "searching", "indexing",
		"tokenization", "normalization", "efficiently",
		"processing", "infrastructure", "scalability",
	}
	cases := map[string]Normalizer{
		"suffix":         Suffix,
		"snowball":       snow,
		"snowball_cache": NewCached(snow),
	}
	for name, n := range cases {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				for _, w := range words {
					_ = n.Normalize(w)
				}
			}
		})
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	tok := benchTokenizer(b, Lowercase)
	baseWord := "term vector dictionary weighting similarity "
	for _, size := range []int{10, 100, 500, 1000, 5000} {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				_ = tok.Tokenize(text)
			}
		})
	}
}
