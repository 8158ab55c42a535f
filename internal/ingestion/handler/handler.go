// Package handler indexes documents arriving over HTTP or Kafka. Both paths
// share validation, indexing and the vectorized-event announcement.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/termvec/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/metrics"
)

const maxBodyBytes = 2 << 20

// Announcer is satisfied by *publisher.Publisher.
type Announcer interface {
	PublishVectorized(ctx context.Context, doc *corpus.Document) error
}

type Handler struct {
	corpus    *corpus.Corpus
	announcer Announcer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Handler. announcer and m may be nil.
func New(c *corpus.Corpus, announcer Announcer, m *metrics.Metrics) *Handler {
	return &Handler{
		corpus:    c,
		announcer: announcer,
		metrics:   m,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Index validates and indexes req, then announces the document.
func (h *Handler) Index(ctx context.Context, req *ingestion.IndexRequest) (*ingestion.IndexResponse, error) {
	if err := validator.ValidateIndexRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	var (
		doc *corpus.Document
		err error
	)
	if len(req.Tokens) > 0 {
		doc, err = h.corpus.IndexTokens(req.DocumentID, req.Tokens)
	} else {
		doc, err = h.corpus.IndexDocument(req.DocumentID, req.Text)
	}
	if err != nil {
		return nil, err
	}
	if h.announcer != nil {
		// Failures are logged by the announcer; the document stays indexed.
		_ = h.announcer.PublishVectorized(ctx, doc)
	}
	return &ingestion.IndexResponse{
		DocumentID:    doc.ID,
		Status:        ingestion.StatusIndexed,
		Tag:           doc.Tag,
		Tokens:        doc.Tokens,
		DistinctTerms: doc.Counts.Size(),
		Vocabulary:    h.corpus.Dictionary().Size(),
	}, nil
}

// Ingest serves POST /api/v1/documents.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IndexRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.Index(ctx, &req)
	if err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		statusCode := apperrors.HTTPStatusCode(err)
		log.Warn("indexing failed",
			"doc_id", req.DocumentID,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, err.Error())
		return
	}
	log.Info("document indexed",
		"doc_id", resp.DocumentID,
		"tag", resp.Tag,
		"token_count", resp.Tokens,
	)
	h.writeJSON(w, http.StatusCreated, resp)
}

// HandleMessage returns a Kafka MessageHandler that indexes document-ingest
// events. Undecodable or invalid events are skipped; redelivered documents
// are acknowledged without being indexed twice.
func (h *Handler) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[ingestion.IndexRequest](value)
		if err != nil {
			h.count("decode_error")
			return fmt.Errorf("%w: %w", kafka.ErrSkip, err)
		}
		if req.DocumentID == "" {
			req.DocumentID = string(key)
		}
		resp, err := h.Index(ctx, &req)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrDocumentExists):
			h.count("duplicate")
			h.logger.Info("document already indexed", "doc_id", req.DocumentID)
			return nil
		case errors.Is(err, apperrors.ErrInvalidInput):
			h.count("invalid")
			return fmt.Errorf("%w: %w", kafka.ErrSkip, err)
		default:
			h.count("error")
			return fmt.Errorf("indexing document %s: %w", req.DocumentID, err)
		}
		h.count("indexed")
		h.logger.Debug("document indexed from kafka",
			"doc_id", resp.DocumentID,
			"tag", resp.Tag,
		)
		return nil
	}
}

func (h *Handler) count(status string) {
	if h.metrics != nil {
		h.metrics.IngestMessagesTotal.WithLabelValues(status).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
