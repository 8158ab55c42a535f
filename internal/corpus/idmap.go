package corpus

import (
	"sync"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/dictionary"
)

// IDMap is the reverse of a dictionary's token→ID mapping. It is safe for
// concurrent use and satisfies vector.TokenLookup.
type IDMap struct {
	mu     sync.RWMutex
	tokens map[int]string
}

// NewIDMap returns an empty IDMap.
func NewIDMap() *IDMap {
	return &IDMap{tokens: make(map[int]string)}
}

// IDMapFrom builds an IDMap from every entry currently in d.
func IDMapFrom(d *dictionary.Dictionary) *IDMap {
	m := NewIDMap()
	for token, id := range d.All() {
		m.tokens[id] = token
	}
	return m
}

// Set records that id refers to token.
func (m *IDMap) Set(id int, token string) {
	m.mu.Lock()
	m.tokens[id] = token
	m.mu.Unlock()
}

// Token returns the token assigned to id.
func (m *IDMap) Token(id int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[id]
	return token, ok
}

// Len returns the number of mapped IDs.
func (m *IDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
