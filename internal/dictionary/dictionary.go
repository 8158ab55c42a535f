// Package dictionary assigns stable integer IDs to normalized tokens and keeps
// the per-document bookkeeping needed for inverse document frequency.
//
// IDs start at 1 and grow by one for every new token in first-seen order. A
// token's document frequency is incremented at most once per document tag,
// however often the token repeats inside that document.
package dictionary

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrUninitializedDictionary is returned by Get while the vocabulary is empty.
var ErrUninitializedDictionary = errors.New("dictionary not populated")

// Normalizer maps a raw token to the form stored in the vocabulary.
type Normalizer interface {
	Normalize(token string) string
}

// NormalizerFunc adapts a plain function to the Normalizer interface.
type NormalizerFunc func(token string) string

func (f NormalizerFunc) Normalize(token string) string {
	return f(token)
}

// Option configures a Dictionary.
type Option func(*Dictionary)

// WithNormalizer replaces the default lowercasing normalizer.
func WithNormalizer(n Normalizer) Option {
	return func(d *Dictionary) {
		if n != nil {
			d.normalizer = n
		}
	}
}

// Dictionary is safe for concurrent use by multiple goroutines.
type Dictionary struct {
	mu         sync.RWMutex
	vocabulary map[string]int
	docFreq    map[string]float64
	seen       map[int]map[string]struct{}
	docCount   atomic.Int64
	normalizer Normalizer
}

// New returns an empty Dictionary.
func New(opts ...Option) *Dictionary {
	d := &Dictionary{
		vocabulary: make(map[string]int),
		docFreq:    make(map[string]float64),
		seen:       make(map[int]map[string]struct{}),
		normalizer: NormalizerFunc(strings.ToLower),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IncrementDocumentCount advances the document boundary and returns the new
// document count.
func (d *Dictionary) IncrementDocumentCount() int {
	return int(d.docCount.Add(1))
}

// DocumentCount returns the number of documents ingested so far.
func (d *Dictionary) DocumentCount() int {
	return int(d.docCount.Load())
}

// Add records token under the current document tag, which is the document
// count at the time of the call. It returns the token's ID, or 0 if the token
// normalizes to the empty string.
func (d *Dictionary) Add(token string) int {
	return d.AddToDocument(d.DocumentCount(), token)
}

// AddAll adds every token under the current document tag and returns their
// IDs in input order.
func (d *Dictionary) AddAll(tokens []string) []int {
	tag := d.DocumentCount()
	ids := make([]int, len(tokens))
	for i, token := range tokens {
		ids[i] = d.AddToDocument(tag, token)
	}
	return ids
}

// AddToDocument records token under an explicit document tag. Callers that
// ingest documents concurrently should use it instead of Add so that a
// boundary moved by another goroutine cannot misattribute document frequency.
func (d *Dictionary) AddToDocument(tag int, token string) int {
	term := d.normalizer.Normalize(token)
	if term == "" {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id, exists := d.vocabulary[term]
	if !exists {
		id = len(d.vocabulary) + 1
		d.vocabulary[term] = id
	}
	terms, ok := d.seen[tag]
	if !ok {
		terms = make(map[string]struct{})
		d.seen[tag] = terms
	}
	if _, counted := terms[term]; !counted {
		terms[term] = struct{}{}
		d.docFreq[term]++
	}
	return id
}

// Release drops the per-document bookkeeping for tag. Tokens added later
// under the same tag are counted toward document frequency again, so only
// release tags whose document is complete.
func (d *Dictionary) Release(tag int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, tag)
}

// Contains reports whether token is a vocabulary key. The token is not
// normalized.
func (d *Dictionary) Contains(token string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.vocabulary[token]
	return ok
}

// Get returns the ID assigned to token. It fails with
// ErrUninitializedDictionary while the vocabulary is empty, whatever the
// token; an unknown token in a populated dictionary yields ok == false.
func (d *Dictionary) Get(token string) (id int, ok bool, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.vocabulary) == 0 {
		return 0, false, ErrUninitializedDictionary
	}
	id, ok = d.vocabulary[token]
	return id, ok, nil
}

// Size returns the vocabulary cardinality.
func (d *Dictionary) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.vocabulary)
}

// DocumentFrequency returns the number of distinct documents token was added
// under.
func (d *Dictionary) DocumentFrequency(token string) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	df, ok := d.docFreq[token]
	return df, ok
}

// IDF returns ln(documentCount / documentFrequency) without smoothing. A term
// present in every document scores 0. With no documents counted the result
// is -Inf, so callers must increment the document count first.
func (d *Dictionary) IDF(token string) (float64, bool) {
	d.mu.RLock()
	df, ok := d.docFreq[token]
	d.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return math.Log(float64(d.DocumentCount()) / df), true
}

// All returns a fresh sequence of (token, ID) pairs over a snapshot of the
// vocabulary. Iteration order is unspecified.
func (d *Dictionary) All() iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		d.mu.RLock()
		snapshot := make(map[string]int, len(d.vocabulary))
		for term, id := range d.vocabulary {
			snapshot[term] = id
		}
		d.mu.RUnlock()
		for term, id := range snapshot {
			if !yield(term, id) {
				return
			}
		}
	}
}

// Term is one vocabulary entry together with its document frequency.
type Term struct {
	Token   string  `json:"token"`
	ID      int     `json:"id"`
	DocFreq float64 `json:"doc_freq"`
}

// State is a point-in-time copy of a Dictionary, ordered by ID.
type State struct {
	DocumentCount int    `json:"document_count"`
	Terms         []Term `json:"terms"`
}

// Snapshot copies the vocabulary, document frequencies and document count.
// Per-document bookkeeping is not included.
func (d *Dictionary) Snapshot() State {
	d.mu.RLock()
	terms := make([]Term, 0, len(d.vocabulary))
	for term, id := range d.vocabulary {
		terms = append(terms, Term{Token: term, ID: id, DocFreq: d.docFreq[term]})
	}
	d.mu.RUnlock()
	sort.Slice(terms, func(i, j int) bool {
		return terms[i].ID < terms[j].ID
	})
	return State{
		DocumentCount: d.DocumentCount(),
		Terms:         terms,
	}
}

// Restore rebuilds a Dictionary from a State. IDs must form the contiguous
// range 1..len(Terms), every document frequency must be at least 1, and a
// state with terms must count at least one document, or IDF would be -Inf.
func Restore(state State, opts ...Option) (*Dictionary, error) {
	if state.DocumentCount < 0 {
		return nil, fmt.Errorf("restoring dictionary: negative document count %d", state.DocumentCount)
	}
	if state.DocumentCount == 0 && len(state.Terms) > 0 {
		return nil, fmt.Errorf("restoring dictionary: %d terms but no documents", len(state.Terms))
	}
	d := New(opts...)
	ids := make(map[int]string, len(state.Terms))
	for _, t := range state.Terms {
		if t.Token == "" {
			return nil, fmt.Errorf("restoring dictionary: empty token for id %d", t.ID)
		}
		if t.ID < 1 || t.ID > len(state.Terms) {
			return nil, fmt.Errorf("restoring dictionary: id %d for %q outside 1..%d", t.ID, t.Token, len(state.Terms))
		}
		if prev, dup := ids[t.ID]; dup {
			return nil, fmt.Errorf("restoring dictionary: id %d assigned to both %q and %q", t.ID, prev, t.Token)
		}
		if _, dup := d.vocabulary[t.Token]; dup {
			return nil, fmt.Errorf("restoring dictionary: duplicate token %q", t.Token)
		}
		if t.DocFreq < 1 {
			return nil, fmt.Errorf("restoring dictionary: document frequency %v for %q", t.DocFreq, t.Token)
		}
		ids[t.ID] = t.Token
		d.vocabulary[t.Token] = t.ID
		d.docFreq[t.Token] = t.DocFreq
	}
	d.docCount.Store(int64(state.DocumentCount))
	return d, nil
}
