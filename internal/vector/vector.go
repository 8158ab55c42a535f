// Package vector implements sparse real-valued vectors keyed by dictionary
// IDs, with TF-IDF conversion and the algebra needed for cosine similarity.
//
// Absent keys have weight zero. Algebraic operations return new vectors and
// never modify their operands. A Vector is not safe for concurrent mutation;
// callers that share one must guard it themselves.
package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNullVector is returned when the other operand is nil.
	ErrNullVector = errors.New("null vector not allowed")
	// ErrZeroNorm is returned when normalizing by a zero-length vector.
	ErrZeroNorm = errors.New("cannot normalize by zero-norm vector")
)

// Vocabulary is the read side of a dictionary used for TF-IDF weighting.
type Vocabulary interface {
	Contains(token string) bool
	IDF(token string) (float64, bool)
}

// TokenLookup resolves a dictionary ID back to its token. It must be kept
// consistent with the dictionary that assigned the IDs.
type TokenLookup interface {
	Token(id int) (string, bool)
}

// TokenMap is a plain reverse mapping from ID to token.
type TokenMap map[int]string

func (m TokenMap) Token(id int) (string, bool) {
	token, ok := m[id]
	return token, ok
}

// Vector is a sparse mapping from ID to weight.
type Vector struct {
	weights map[int]float64
}

// New returns an empty Vector.
func New() *Vector {
	return &Vector{weights: make(map[int]float64)}
}

// FromMap returns a Vector holding a copy of weights.
func FromMap(weights map[int]float64) *Vector {
	v := &Vector{weights: make(map[int]float64, len(weights))}
	for id, w := range weights {
		v.weights[id] = w
	}
	return v
}

// Put adds value to the weight stored under id, inserting it if absent.
func (v *Vector) Put(id int, value float64) {
	if v.weights == nil {
		v.weights = make(map[int]float64)
	}
	v.weights[id] += value
}

// PutReplace overwrites the weight stored under id.
func (v *Vector) PutReplace(id int, value float64) {
	if v.weights == nil {
		v.weights = make(map[int]float64)
	}
	v.weights[id] = value
}

// Get returns the weight stored under id.
func (v *Vector) Get(id int) (float64, bool) {
	w, ok := v.weights[id]
	return w, ok
}

// Contains reports whether id has a stored entry.
func (v *Vector) Contains(id int) bool {
	_, ok := v.weights[id]
	return ok
}

// Size returns the number of stored entries.
func (v *Vector) Size() int {
	return len(v.weights)
}

// All iterates over the stored (id, weight) entries in unspecified order.
func (v *Vector) All() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for id, w := range v.weights {
			if !yield(id, w) {
				return
			}
		}
	}
}

// Keys returns the stored IDs in ascending order.
func (v *Vector) Keys() []int {
	keys := make([]int, 0, len(v.weights))
	for id := range v.weights {
		keys = append(keys, id)
	}
	sort.Ints(keys)
	return keys
}

// Map returns a copy of the stored entries.
func (v *Vector) Map() map[int]float64 {
	out := make(map[int]float64, len(v.weights))
	for id, w := range v.weights {
		out[id] = w
	}
	return out
}

// DotProduct sums the products of weights over keys present in both vectors.
// It walks the vector with fewer stored entries.
func (v *Vector) DotProduct(other *Vector) (float64, error) {
	if other == nil {
		return 0, ErrNullVector
	}
	small, large := v, other
	if small.Size() > large.Size() {
		small, large = large, small
	}
	var sum float64
	for id, w := range small.weights {
		if ow, ok := large.weights[id]; ok {
			sum += w * ow
		}
	}
	return sum, nil
}

// Norm returns the L2 norm.
func (v *Vector) Norm() float64 {
	var sum float64
	for _, w := range v.weights {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// NormalizedDotProduct returns the cosine similarity of v and other.
func (v *Vector) NormalizedDotProduct(other *Vector) (float64, error) {
	dot, err := v.DotProduct(other)
	if err != nil {
		return 0, err
	}
	n1, n2 := v.Norm(), other.Norm()
	if n1 == 0 || n2 == 0 {
		return 0, ErrZeroNorm
	}
	return dot / (n1 * n2), nil
}

// Scale returns a new Vector with every weight multiplied by alpha.
func (v *Vector) Scale(alpha float64) *Vector {
	out := &Vector{weights: make(map[int]float64, len(v.weights))}
	for id, w := range v.weights {
		out.weights[id] = alpha * w
	}
	return out
}

// Add returns the entry-wise sum of v and other over the union of their keys.
func (v *Vector) Add(other *Vector) (*Vector, error) {
	if other == nil {
		return nil, ErrNullVector
	}
	out := FromMap(v.weights)
	for id, w := range other.weights {
		out.Put(id, w)
	}
	return out, nil
}

// NormalizeL2 returns v scaled to unit length.
func (v *Vector) NormalizeL2() (*Vector, error) {
	norm := v.Norm()
	if norm == 0 {
		return nil, ErrZeroNorm
	}
	return v.Scale(1 / norm), nil
}

// TFIDF treats the stored weights as term frequencies and returns a vector
// weighted by each term's inverse document frequency. Entries whose ID does
// not resolve to a token, or whose token is unknown to vocab, are dropped.
func (v *Vector) TFIDF(vocab Vocabulary, tokens TokenLookup) *Vector {
	out := New()
	for id, tf := range v.weights {
		token, ok := tokens.Token(id)
		if !ok || !vocab.Contains(token) {
			continue
		}
		idf, ok := vocab.IDF(token)
		if !ok {
			continue
		}
		out.Put(id, idf*tf)
	}
	return out
}

// Dense returns the vector as a dense gonum vector of length dim, placing ID
// i at index i-1. Entries with IDs outside 1..dim are ignored. dim must be
// positive.
func (v *Vector) Dense(dim int) *mat.VecDense {
	data := make([]float64, dim)
	for id, w := range v.weights {
		if id >= 1 && id <= dim {
			data[id-1] = w
		}
	}
	return mat.NewVecDense(dim, data)
}

func (v *Vector) String() string {
	return fmt.Sprintf("Vector(%d entries, norm=%.4f)", len(v.weights), v.Norm())
}

// MarshalJSON encodes the vector as an object keyed by ID.
func (v *Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.weights)
}

// UnmarshalJSON decodes an object keyed by ID.
func (v *Vector) UnmarshalJSON(data []byte) error {
	weights := make(map[int]float64)
	if err := json.Unmarshal(data, &weights); err != nil {
		return fmt.Errorf("decoding vector: %w", err)
	}
	v.weights = weights
	return nil
}
