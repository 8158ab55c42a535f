// Package validator provides input validation for index requests. It
// enforces ID and body size constraints and returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/ingestion"
)

const (
	maxDocumentIDLength = 255
	maxTextLength       = 1048576
	maxTokens           = 100000
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIndexRequest checks the document ID and that exactly one of text
// and tokens is supplied within size limits.
func ValidateIndexRequest(req *ingestion.IndexRequest) error {
	errs := make(map[string]string)

	id := strings.TrimSpace(req.DocumentID)
	if id == "" {
		errs["document_id"] = "document_id is required"
	} else if len(id) > maxDocumentIDLength {
		errs["document_id"] = fmt.Sprintf("document_id must be at most %d characters", maxDocumentIDLength)
	}
	hasText := strings.TrimSpace(req.Text) != ""
	switch {
	case hasText && len(req.Tokens) > 0:
		errs["text"] = "text and tokens are mutually exclusive"
	case !hasText && len(req.Tokens) == 0:
		errs["text"] = "one of text or tokens is required"
	case len(req.Text) > maxTextLength:
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	case len(req.Tokens) > maxTokens:
		errs["tokens"] = fmt.Sprintf("at most %d tokens are accepted", maxTokens)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
