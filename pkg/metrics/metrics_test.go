package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.DocumentsIndexedTotal.Inc()
	m.SimilarityQueriesTotal.WithLabelValues("cached").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsIndexedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SimilarityQueriesTotal.WithLabelValues("cached")))

	// A second registry takes a second set without conflict.
	assert.NotPanics(t, func() { New(NewRegistry()) })
	assert.Panics(t, func() { New(reg) })
}

func TestServerExposesMetrics(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.VocabularySize.Set(42)

	srv := httptest.NewServer(NewServer(0, reg).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "termvec_vocabulary_size 42")
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
