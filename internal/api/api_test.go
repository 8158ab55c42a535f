package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/metrics"
)

type fakeCache struct {
	scores map[string]float64
}

func (f *fakeCache) Similarity(_ context.Context, gen uint64, a, b string, compute func() (float64, error)) (float64, bool, error) {
	key := a + "|" + b
	if v, ok := f.scores[key]; ok {
		return v, true, nil
	}
	v, err := compute()
	if err == nil {
		f.scores[key] = v
	}
	return v, false, err
}

func (f *fakeCache) MostSimilar(_ context.Context, _ uint64, _ string, _ int, compute func() ([]corpus.Match, error)) ([]corpus.Match, bool, error) {
	m, err := compute()
	return m, false, err
}

type testServer struct {
	*httptest.Server
	metrics *metrics.Metrics
}

func newServer(t *testing.T, cache SimilarityCache) *testServer {
	t.Helper()
	c, err := corpus.New(nil)
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	h := New(c, cache, m, 2, 5)
	ingest := handler.New(c, nil, m)
	srv := httptest.NewServer(NewRouter(h, ingest.Ingest, health.NewChecker(), m, config.ServerConfig{
		RequestTimeout: time.Second,
		SlowRequest:    time.Hour,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, metrics: m}
}

func (s *testServer) index(t *testing.T, id, text string) {
	t.Helper()
	body := `{"document_id":"` + id + `","text":"` + text + `"}`
	resp, err := http.Post(s.URL+"/api/v1/documents", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (s *testServer) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(data, out))
	}
	return resp.StatusCode
}

func TestTermBeforeAnyDocument(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusConflict, s.get(t, "/api/v1/terms/cat", nil))
}

func TestEndToEnd(t *testing.T) {
	s := newServer(t, &fakeCache{scores: map[string]float64{}})
	s.index(t, "d1", "the cat sat")
	s.index(t, "d2", "the dog ran")
	s.index(t, "d3", "a cat ran")

	var term corpus.TermInfo
	require.Equal(t, http.StatusOK, s.get(t, "/api/v1/terms/Cat", &term))
	assert.Equal(t, "cat", term.Token)
	assert.Equal(t, 2.0, term.DocFreq)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/v1/terms/bird", nil))

	var tf VectorResponse
	require.Equal(t, http.StatusOK, s.get(t, "/api/v1/documents/d1/vector?weighting=tf", &tf))
	assert.Equal(t, 3, tf.Weights.Size())

	var l2 VectorResponse
	require.Equal(t, http.StatusOK, s.get(t, "/api/v1/documents/d1/vector?weighting=l2", &l2))
	assert.InDelta(t, 1.0, l2.Norm, 1e-12)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/v1/documents/d1/vector?weighting=bm25", nil))
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/v1/documents/nope/vector", nil))

	var sim SimilarityResponse
	require.Equal(t, http.StatusOK, s.get(t, "/api/v1/similarity?a=d1&b=d3", &sim))
	assert.False(t, sim.Cached)
	assert.Greater(t, sim.Similarity, 0.0)
	var again SimilarityResponse
	require.Equal(t, http.StatusOK, s.get(t, "/api/v1/similarity?a=d1&b=d3", &again))
	assert.True(t, again.Cached)
	assert.Equal(t, sim.Similarity, again.Similarity)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/v1/similarity?a=d1", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.SimilarityQueriesTotal.WithLabelValues("cached")))

	var similar SimilarResponse
	require.Equal(t, http.StatusOK, s.get(t, "/api/v1/documents/d1/similar", &similar))
	assert.Equal(t, 2, similar.K)
	assert.Len(t, similar.Matches, 2)
	require.Equal(t, http.StatusOK, s.get(t, "/api/v1/documents/d1/similar?k=50", &similar))
	assert.Equal(t, 5, similar.K)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/v1/documents/d1/similar?k=0", nil))

	var stats corpus.Stats
	require.Equal(t, http.StatusOK, s.get(t, "/api/v1/stats", &stats))
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 6, stats.Terms)

	var list struct {
		Documents []string `json:"documents"`
		Total     int      `json:"total"`
	}
	require.Equal(t, http.StatusOK, s.get(t, "/api/v1/documents", &list))
	assert.Equal(t, []string{"d1", "d2", "d3"}, list.Documents)
	assert.Equal(t, http.StatusOK, s.get(t, "/api/v1/documents/d2", nil))
}

func TestZeroNormIsUnprocessable(t *testing.T) {
	s := newServer(t, nil)
	s.index(t, "d1", "same")
	s.index(t, "d2", "same")
	assert.Equal(t, http.StatusUnprocessableEntity, s.get(t, "/api/v1/similarity?a=d1&b=d2", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, s.get(t, "/api/v1/documents/d1/vector?weighting=l2", nil))
}

func TestHealthAndRequestID(t *testing.T) {
	s := newServer(t, nil)
	resp, err := http.Get(s.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, http.StatusOK, s.get(t, "/health/ready", nil))
}

func TestBadParameterMessages(t *testing.T) {
	s := newServer(t, nil)
	s.index(t, "d1", "cats and dogs")

	for path, want := range map[string]string{
		"/api/v1/documents/d1/similar?k=zero":     `k must be a positive integer, got "zero"`,
		"/api/v1/documents/d1/vector?weighting=x": `unknown weighting "x", want tf, tfidf or l2`,
		"/api/v1/similarity?b=d1":                 `query parameters 'a' and 'b' are required`,
	} {
		resp, err := http.Get(s.URL + path)
		require.NoError(t, err)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Equal(t, want, body["error"], path)
	}
}
