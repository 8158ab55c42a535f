// Package corpus ties the tokenizer, the dictionary and per-document term
// vectors together. It owns the reverse ID map the dictionary leaves to its
// callers and answers TF-IDF, similarity and matrix queries over the indexed
// documents.
package corpus

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/source"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/termvec/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/metrics"
)

// Document is one indexed document. Counts holds raw term frequencies keyed
// by dictionary ID and is never modified after indexing.
type Document struct {
	ID        string
	Tag       int
	Tokens    int
	Counts    *vector.Vector
	IndexedAt time.Time
}

// TermInfo describes a vocabulary entry.
type TermInfo struct {
	Token   string  `json:"token"`
	ID      int     `json:"id"`
	DocFreq float64 `json:"doc_freq"`
	IDF     float64 `json:"idf"`
}

// Match is a document scored against a query document.
type Match struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Stats summarises the corpus.
type Stats struct {
	Documents   int    `json:"documents"`
	Terms       int    `json:"terms"`
	TotalTokens int64  `json:"total_tokens"`
	Generation  uint64 `json:"generation"`
}

// Option configures a Corpus.
type Option func(*Corpus)

// WithMetrics reports indexing progress to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Corpus) {
		c.metrics = m
	}
}

// Corpus is safe for concurrent use. Documents may be indexed from many
// goroutines at once; they share one dictionary.
type Corpus struct {
	dict *dictionary.Dictionary
	tok  *tokenizer.Tokenizer
	ids  *IDMap

	// ingestMu is held shared while a document is indexed and exclusively
	// while a snapshot is taken.
	ingestMu sync.RWMutex

	mu          sync.RWMutex
	docs        map[string]*Document
	pending     map[string]struct{}
	order       []string
	totalTokens int64

	generation atomic.Uint64
	inflight   atomic.Int64
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New returns an empty Corpus that tokenizes text with tok. A nil tok
// splits on non-alphanumeric runs without stemming or stop-word removal.
func New(tok *tokenizer.Tokenizer, opts ...Option) (*Corpus, error) {
	return newCorpus(tok, dictionary.New(), NewIDMap(), opts)
}

func newCorpus(tok *tokenizer.Tokenizer, dict *dictionary.Dictionary, ids *IDMap, opts []Option) (*Corpus, error) {
	if tok == nil {
		var err error
		tok, err = tokenizer.New(tokenizer.Options{})
		if err != nil {
			return nil, fmt.Errorf("building default tokenizer: %w", err)
		}
	}
	c := &Corpus{
		dict:    dict,
		tok:     tok,
		ids:     ids,
		docs:    make(map[string]*Document),
		pending: make(map[string]struct{}),
		logger:  slog.Default().With("component", "corpus"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dictionary returns the shared dictionary.
func (c *Corpus) Dictionary() *dictionary.Dictionary {
	return c.dict
}

// IDs returns the reverse ID map kept alongside the dictionary.
func (c *Corpus) IDs() *IDMap {
	return c.ids
}

// IndexDocument tokenizes text and indexes it under docID.
func (c *Corpus) IndexDocument(docID string, text string) (*Document, error) {
	return c.IndexTokens(docID, c.tok.Tokenize(text))
}

// IndexReader indexes every line of r as part of a single document.
func (c *Corpus) IndexReader(docID string, r io.Reader) (*Document, error) {
	var tokens []string
	for line, err := range source.Lines(r) {
		if err != nil {
			return nil, fmt.Errorf("reading document %s: %w", docID, err)
		}
		tokens = append(tokens, c.tok.Tokenize(line)...)
	}
	return c.IndexTokens(docID, tokens)
}

// IndexTokens indexes already-normalized tokens under docID. The document
// gets its own tag, so concurrent calls never share document-frequency
// credit.
func (c *Corpus) IndexTokens(docID string, tokens []string) (*Document, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("%w: document id is required", apperrors.ErrInvalidInput)
	}
	if err := c.reserve(docID); err != nil {
		return nil, err
	}

	c.inflight.Add(1)
	c.ingestMu.RLock()
	tag := c.dict.IncrementDocumentCount()
	counts := vector.New()
	for _, token := range tokens {
		term := strings.ToLower(token)
		id := c.dict.AddToDocument(tag, term)
		if id == 0 {
			continue
		}
		c.ids.Set(id, term)
		counts.Put(id, 1)
	}
	c.dict.Release(tag)
	doc := &Document{
		ID:        docID,
		Tag:       tag,
		Tokens:    len(tokens),
		Counts:    counts,
		IndexedAt: time.Now().UTC(),
	}
	c.mu.Lock()
	delete(c.pending, docID)
	c.docs[docID] = doc
	c.order = append(c.order, docID)
	c.totalTokens += int64(len(tokens))
	c.mu.Unlock()
	c.generation.Add(1)
	c.inflight.Add(-1)
	c.ingestMu.RUnlock()

	if c.metrics != nil {
		c.metrics.DocumentsIndexedTotal.Inc()
		c.metrics.VocabularySize.Set(float64(c.dict.Size()))
	}
	c.logger.Debug("document indexed",
		"doc_id", docID,
		"tag", tag,
		"token_count", len(tokens),
		"distinct_terms", counts.Size(),
	)
	return doc, nil
}

func (c *Corpus) reserve(docID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[docID]; exists {
		return fmt.Errorf("%w: %s", apperrors.ErrDocumentExists, docID)
	}
	if _, busy := c.pending[docID]; busy {
		return fmt.Errorf("%w: %s", apperrors.ErrDocumentExists, docID)
	}
	c.pending[docID] = struct{}{}
	return nil
}

// Document returns the indexed document with the given ID.
func (c *Corpus) Document(docID string) (*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[docID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, docID)
	}
	return doc, nil
}

// DocumentIDs returns indexed document IDs in indexing order.
func (c *Corpus) DocumentIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// TermFrequencies returns a copy of the document's raw term counts.
func (c *Corpus) TermFrequencies(docID string) (*vector.Vector, error) {
	doc, err := c.Document(docID)
	if err != nil {
		return nil, err
	}
	return doc.Counts.Scale(1), nil
}

// TFIDF returns the document's term counts weighted by the current IDF
// values.
func (c *Corpus) TFIDF(docID string) (*vector.Vector, error) {
	doc, err := c.Document(docID)
	if err != nil {
		return nil, err
	}
	return doc.Counts.TFIDF(c.dict, c.ids), nil
}

// Similarity returns the cosine similarity of two documents' TF-IDF vectors.
func (c *Corpus) Similarity(a, b string) (float64, error) {
	va, err := c.TFIDF(a)
	if err != nil {
		return 0, err
	}
	vb, err := c.TFIDF(b)
	if err != nil {
		return 0, err
	}
	score, err := va.NormalizedDotProduct(vb)
	if err != nil {
		return 0, fmt.Errorf("comparing %s and %s: %w", a, b, err)
	}
	return score, nil
}

// MostSimilar returns up to k documents ranked by cosine similarity to
// docID, highest first. Documents whose TF-IDF vector has zero length are
// skipped.
func (c *Corpus) MostSimilar(docID string, k int) ([]Match, error) {
	target, err := c.TFIDF(docID)
	if err != nil {
		return nil, err
	}
	if target.Norm() == 0 {
		return nil, fmt.Errorf("ranking neighbours of %s: %w", docID, vector.ErrZeroNorm)
	}
	matches := make([]Match, 0)
	for _, id := range c.DocumentIDs() {
		if id == docID {
			continue
		}
		other, err := c.TFIDF(id)
		if err != nil {
			return nil, err
		}
		score, err := target.NormalizedDotProduct(other)
		if err != nil {
			continue
		}
		matches = append(matches, Match{DocID: id, Score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].DocID < matches[j].DocID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Term looks up a raw word after normalizing it the way indexed text is
// normalized.
func (c *Corpus) Term(word string) (TermInfo, error) {
	token := c.tok.Normalize(word)
	id, ok, err := c.dict.Get(token)
	if err != nil {
		return TermInfo{}, err
	}
	if !ok {
		return TermInfo{}, fmt.Errorf("%w: %s", apperrors.ErrTermNotFound, token)
	}
	df, _ := c.dict.DocumentFrequency(token)
	idf, _ := c.dict.IDF(token)
	return TermInfo{Token: token, ID: id, DocFreq: df, IDF: idf}, nil
}

// TermMatrix returns the TF-IDF document-term matrix for docIDs, one row per
// document and one column per dictionary ID (column j holds ID j+1). With no
// IDs every document is included in indexing order.
func (c *Corpus) TermMatrix(docIDs ...string) (*mat.Dense, error) {
	if len(docIDs) == 0 {
		docIDs = c.DocumentIDs()
	}
	cols := c.dict.Size()
	if len(docIDs) == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: empty corpus", apperrors.ErrInvalidInput)
	}
	m := mat.NewDense(len(docIDs), cols, nil)
	for i, id := range docIDs {
		weights, err := c.TFIDF(id)
		if err != nil {
			return nil, err
		}
		for termID, w := range weights.All() {
			if termID >= 1 && termID <= cols {
				m.Set(i, termID-1, w)
			}
		}
	}
	return m, nil
}

// Generation increases every time a document is indexed. Cached values
// derived from IDF weights are stale once it changes.
func (c *Corpus) Generation() uint64 {
	return c.generation.Load()
}

// Settled reports whether the corpus is still at generation gen with no
// document part-way through indexing. A value computed between reading gen
// and a true Settled(gen) saw consistent document counts and frequencies.
func (c *Corpus) Settled(gen uint64) bool {
	// inflight is read first; an indexer bumps the generation before it
	// leaves the in-flight count.
	if c.inflight.Load() != 0 {
		return false
	}
	return c.generation.Load() == gen
}

// Stats returns document and vocabulary counts.
func (c *Corpus) Stats() Stats {
	c.mu.RLock()
	docs, tokens := len(c.docs), c.totalTokens
	c.mu.RUnlock()
	return Stats{
		Documents:   docs,
		Terms:       c.dict.Size(),
		TotalTokens: tokens,
		Generation:  c.Generation(),
	}
}
