// Package api serves read queries over the corpus: document vectors, term
// statistics and similarity.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/termvec/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/tracing"
)

// SimilarityCache is satisfied by *cache.SimilarityCache.
type SimilarityCache interface {
	Similarity(ctx context.Context, gen uint64, a, b string, compute func() (float64, error)) (float64, bool, error)
	MostSimilar(ctx context.Context, gen uint64, docID string, k int, compute func() ([]corpus.Match, error)) ([]corpus.Match, bool, error)
}

// VectorResponse is the body of GET /documents/{id}/vector.
type VectorResponse struct {
	DocumentID string         `json:"document_id"`
	Weighting  string         `json:"weighting"`
	Norm       float64        `json:"norm"`
	Weights    *vector.Vector `json:"weights"`
}

// SimilarityResponse is the body of GET /similarity.
type SimilarityResponse struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	Similarity float64 `json:"similarity"`
	Cached     bool    `json:"cached"`
}

// SimilarResponse is the body of GET /documents/{id}/similar.
type SimilarResponse struct {
	DocumentID string         `json:"document_id"`
	K          int            `json:"k"`
	Matches    []corpus.Match `json:"matches"`
	Cached     bool           `json:"cached"`
}

type Handler struct {
	corpus   *corpus.Corpus
	cache    SimilarityCache
	metrics  *metrics.Metrics
	defaultK int
	maxK     int
	logger   *slog.Logger
}

// New creates a Handler. cache and m may be nil.
func New(c *corpus.Corpus, cache SimilarityCache, m *metrics.Metrics, defaultK, maxK int) *Handler {
	return &Handler{
		corpus:   c,
		cache:    cache,
		metrics:  m,
		defaultK: defaultK,
		maxK:     maxK,
		logger:   slog.Default().With("component", "api-handler"),
	}
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ids := h.corpus.DocumentIDs()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": ids,
		"total":     len(ids),
	})
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.corpus.Document(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"document_id":    doc.ID,
		"tag":            doc.Tag,
		"tokens":         doc.Tokens,
		"distinct_terms": doc.Counts.Size(),
		"indexed_at":     doc.IndexedAt,
	})
}

func (h *Handler) GetVector(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	weighting := r.URL.Query().Get("weighting")
	if weighting == "" {
		weighting = "tfidf"
	}
	var (
		v   *vector.Vector
		err error
	)
	switch weighting {
	case "tf":
		v, err = h.corpus.TermFrequencies(id)
	case "tfidf":
		v, err = h.corpus.TFIDF(id)
	case "l2":
		v, err = h.corpus.TFIDF(id)
		if err == nil {
			v, err = v.NormalizeL2()
		}
	default:
		h.fail(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown weighting %q, want tf, tfidf or l2", weighting))
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, VectorResponse{
		DocumentID: id,
		Weighting:  weighting,
		Norm:       v.Norm(),
		Weights:    v,
	})
}

func (h *Handler) GetTerm(w http.ResponseWriter, r *http.Request) {
	info, err := h.corpus.Term(r.PathValue("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) Similarity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		h.fail(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameters 'a' and 'b' are required"))
		return
	}
	ctx, span := tracing.StartChildSpan(r.Context(), "similarity")
	defer span.End()
	compute := func() (float64, error) {
		_, cs := tracing.StartChildSpan(ctx, "compute")
		defer cs.End()
		return h.corpus.Similarity(a, b)
	}

	var (
		score  float64
		cached bool
		err    error
	)
	if h.cache != nil {
		score, cached, err = h.cache.Similarity(ctx, h.corpus.Generation(), a, b, compute)
	} else {
		score, err = compute()
	}
	h.observeSimilarity(start, cached, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SimilarityResponse{A: a, B: b, Similarity: score, Cached: cached})
}

func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := r.PathValue("id")
	k := h.defaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.fail(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "k must be a positive integer, got %q", raw))
			return
		}
		k = min(parsed, h.maxK)
	}
	ctx, span := tracing.StartChildSpan(r.Context(), "most_similar")
	defer span.End()
	span.SetAttr("k", k)
	compute := func() ([]corpus.Match, error) {
		_, cs := tracing.StartChildSpan(ctx, "compute")
		defer cs.End()
		return h.corpus.MostSimilar(id, k)
	}

	var (
		matches []corpus.Match
		cached  bool
		err     error
	)
	if h.cache != nil {
		matches, cached, err = h.cache.MostSimilar(ctx, h.corpus.Generation(), id, k, compute)
	} else {
		matches, err = compute()
	}
	h.observeSimilarity(start, cached, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SimilarResponse{DocumentID: id, K: k, Matches: matches, Cached: cached})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.corpus.Stats())
}

func (h *Handler) observeSimilarity(start time.Time, cached bool, err error) {
	if h.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case cached:
		result = "cached"
	}
	h.metrics.SimilarityQueriesTotal.WithLabelValues(result).Inc()
	h.metrics.SimilarityLatency.Observe(time.Since(start).Seconds())
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, status, "internal error")
		return
	}
	log.Debug("request rejected", "path", r.URL.Path, "status_code", status, "error", err)
	msg := err.Error()
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		msg = appErr.Message
	case errors.Is(err, apperrors.ErrUninitializedDictionary):
		msg = "no documents have been indexed yet"
	}
	h.writeError(w, status, msg)
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
