package api

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/tracing"
)

// NewRouter builds the service HTTP handler.
//
// Route table:
//
//	POST   /api/v1/documents                 → index a document
//	GET    /api/v1/documents                 → list document IDs
//	GET    /api/v1/documents/{id}            → document metadata
//	GET    /api/v1/documents/{id}/vector     → tf, tfidf or l2 weights
//	GET    /api/v1/documents/{id}/similar    → k most similar documents
//	GET    /api/v1/terms/{token}             → id, df and idf of a term
//	GET    /api/v1/similarity?a=&b=          → cosine similarity
//	GET    /api/v1/stats                     → corpus statistics
//	GET    /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → Tracing → Metrics → Timeout → mux
func NewRouter(h *Handler, ingest http.HandlerFunc, checker *health.Checker, m *metrics.Metrics, cfg config.ServerConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("POST /api/v1/documents", ingest)
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/vector", h.GetVector)
	mux.HandleFunc("GET /api/v1/documents/{id}/similar", h.Similar)
	mux.HandleFunc("GET /api/v1/terms/{token}", h.GetTerm)
	mux.HandleFunc("GET /api/v1/similarity", h.Similarity)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)

	var chain http.Handler = mux
	if cfg.RequestTimeout > 0 {
		chain = middleware.Timeout(cfg.RequestTimeout)(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	if cfg.SlowRequest > 0 {
		chain = tracing.Middleware(cfg.SlowRequest)(chain)
	}
	chain = middleware.RequestID(chain)
	return chain
}
