// Package tracing records per-request span trees. Spans travel in the
// request context; handlers open child spans around the expensive parts of a
// query, and the tree is logged through slog when the request is slow.
package tracing

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/logger"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	children []*Span
	attrs    []any
}

// StartSpan creates a new root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
	}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan creates a child of the span in ctx. Without a parent the
// returned span is detached and never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := &Span{
		Name:      name,
		StartTime: time.Now(),
	}
	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

// End records the span's duration. Only the first call counts.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.duration = time.Since(s.StartTime)
}

// Duration returns the recorded duration, or the time elapsed so far for a
// span that has not ended.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		return time.Since(s.StartTime)
	}
	return s.duration
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Children returns the direct child spans.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Log writes the span tree to log, one record per span.
func (s *Span) Log(log *slog.Logger) {
	s.logRecursive(log, 0)
}

func (s *Span) logRecursive(log *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.duration.Microseconds()) / 1000,
		"depth", depth,
	}
	attrs = append(attrs, s.attrs...)
	children := s.children
	s.mu.Unlock()

	log.Info("span", attrs...)
	for _, child := range children {
		child.logRecursive(log, depth+1)
	}
}

// Middleware opens a root span per request, using the request ID as the
// trace ID, and logs the tree for requests slower than threshold. It must
// run inside middleware.RequestID.
func Middleware(threshold time.Duration) func(http.Handler) http.Handler {
	log := logger.WithComponent("tracing")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := StartSpan(r.Context(), r.Method+" "+r.URL.Path, logger.RequestID(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
			span.End()
			if span.Duration() >= threshold {
				span.Log(log)
			}
		})
	}
}
