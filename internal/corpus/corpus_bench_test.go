package corpus

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"testing"
)

var benchWords = strings.Fields(`vector space term frequency inverse document weight
	cosine token stem corpus dictionary index similarity matrix sparse dense norm
	query ranking retrieval stream snapshot cache latency throughput`)

func benchText(rng *rand.Rand, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = benchWords[rng.IntN(len(benchWords))]
	}
	return strings.Join(words, " ")
}

func benchCorpus(b *testing.B, docs int) *Corpus {
	b.Helper()
	c, err := New(nil)
	if err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range docs {
		if _, err := c.IndexDocument(fmt.Sprintf("doc-%d", i), benchText(rng, 80)); err != nil {
			b.Fatal(err)
		}
	}
	return c
}

// BenchmarkIndexDocument measures per-document indexing throughput into a
// shared dictionary.
func BenchmarkIndexDocument(b *testing.B) {
	c, err := New(nil)
	if err != nil {
		b.Fatal(err)
	}
	text := benchText(rand.New(rand.NewPCG(3, 4)), 80)
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		if _, err := c.IndexDocument(fmt.Sprintf("doc-%d", i), text); err != nil {
			b.Fatal(err)
		}
		i++
	}
}

func BenchmarkIndexDocumentParallel(b *testing.B) {
	c, err := New(nil)
	if err != nil {
		b.Fatal(err)
	}
	text := benchText(rand.New(rand.NewPCG(5, 6)), 80)
	var seq atomic.Int64
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.IndexDocument(fmt.Sprintf("doc-%d", seq.Add(1)), text); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkSimilarity(b *testing.B) {
	c := benchCorpus(b, 1000)
	b.ReportAllocs()
	for b.Loop() {
		if _, err := c.Similarity("doc-1", "doc-2"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMostSimilar(b *testing.B) {
	for _, docs := range []int{100, 1000} {
		c := benchCorpus(b, docs)
		b.Run(fmt.Sprintf("docs_%d", docs), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := c.MostSimilar("doc-0", 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSnapshot(b *testing.B) {
	c := benchCorpus(b, 1000)
	b.ReportAllocs()
	for b.Loop() {
		_ = c.Snapshot()
	}
}
