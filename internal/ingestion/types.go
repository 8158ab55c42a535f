// Package ingestion defines the request/response types and Kafka event schemas
// used by the document ingestion pipeline.
package ingestion

import "time"

// IndexRequest is the JSON body accepted by POST /api/v1/documents and the
// payload of document-ingest Kafka messages. Exactly one of Text and Tokens
// is set; Tokens are taken as already normalized.
type IndexRequest struct {
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text,omitempty"`
	Tokens     []string `json:"tokens,omitempty"`
}

// IndexResponse is returned to the caller after a document is indexed.
type IndexResponse struct {
	DocumentID    string `json:"document_id"`
	Status        string `json:"status"`
	Tag           int    `json:"tag"`
	Tokens        int    `json:"tokens"`
	DistinctTerms int    `json:"distinct_terms"`
	Vocabulary    int    `json:"vocabulary_size"`
}

// VectorizedEvent is published after a document has been indexed. Counts
// holds raw term frequencies keyed by dictionary ID.
type VectorizedEvent struct {
	DocumentID string          `json:"document_id"`
	Tag        int             `json:"tag"`
	Tokens     int             `json:"tokens"`
	Counts     map[int]float64 `json:"counts"`
	IndexedAt  time.Time       `json:"indexed_at"`
}

const (
	StatusIndexed = "INDEXED"

	EventDocumentVectorized = "document.vectorized"
	SchemaVersion           = "1"
)
