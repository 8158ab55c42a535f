package corpus

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/vector"
)

// DocumentState is the persisted form of a Document.
type DocumentState struct {
	ID        string          `json:"id"`
	Tag       int             `json:"tag"`
	Tokens    int             `json:"tokens"`
	Counts    map[int]float64 `json:"counts"`
	IndexedAt time.Time       `json:"indexed_at"`
}

// Snapshot is a consistent copy of the corpus suitable for persistence.
type Snapshot struct {
	Dictionary dictionary.State `json:"dictionary"`
	Documents  []DocumentState  `json:"documents"`
}

// Snapshot captures the dictionary and every document. Indexing is paused
// for the duration so the two halves agree.
func (c *Corpus) Snapshot() Snapshot {
	c.ingestMu.Lock()
	defer c.ingestMu.Unlock()

	c.mu.RLock()
	docs := make([]DocumentState, 0, len(c.order))
	for _, id := range c.order {
		doc := c.docs[id]
		docs = append(docs, DocumentState{
			ID:        doc.ID,
			Tag:       doc.Tag,
			Tokens:    doc.Tokens,
			Counts:    doc.Counts.Map(),
			IndexedAt: doc.IndexedAt,
		})
	}
	c.mu.RUnlock()

	return Snapshot{
		Dictionary: c.dict.Snapshot(),
		Documents:  docs,
	}
}

// Restore rebuilds a Corpus from a snapshot.
func Restore(tok *tokenizer.Tokenizer, snap Snapshot, opts ...Option) (*Corpus, error) {
	dict, err := dictionary.Restore(snap.Dictionary)
	if err != nil {
		return nil, fmt.Errorf("restoring dictionary: %w", err)
	}
	c, err := newCorpus(tok, dict, IDMapFrom(dict), opts)
	if err != nil {
		return nil, err
	}
	size := dict.Size()
	for _, ds := range snap.Documents {
		if ds.ID == "" {
			return nil, fmt.Errorf("restoring documents: empty document id")
		}
		if _, dup := c.docs[ds.ID]; dup {
			return nil, fmt.Errorf("restoring documents: duplicate document %s", ds.ID)
		}
		for id := range ds.Counts {
			if id < 1 || id > size {
				return nil, fmt.Errorf("restoring document %s: term id %d outside 1..%d", ds.ID, id, size)
			}
		}
		c.docs[ds.ID] = &Document{
			ID:        ds.ID,
			Tag:       ds.Tag,
			Tokens:    ds.Tokens,
			Counts:    vector.FromMap(ds.Counts),
			IndexedAt: ds.IndexedAt,
		}
		c.order = append(c.order, ds.ID)
		c.totalTokens += int64(ds.Tokens)
	}
	c.generation.Store(uint64(len(c.order)))
	c.logger.Info("corpus restored",
		"documents", len(c.order),
		"terms", size,
		"document_count", dict.DocumentCount(),
	)
	return c, nil
}
