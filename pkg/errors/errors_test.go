package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/resilience"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("looking up doc: %w", ErrDocumentNotFound), http.StatusNotFound},
		{ErrTermNotFound, http.StatusNotFound},
		{ErrDocumentExists, http.StatusConflict},
		{fmt.Errorf("get: %w", ErrUninitializedDictionary), http.StatusConflict},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrZeroNorm, http.StatusUnprocessableEntity},
		{ErrNullVector, http.StatusUnprocessableEntity},
		{ErrMissingStopWords, http.StatusInternalServerError},
		{fmt.Errorf("snapshot: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("publish: %w", resilience.ErrCircuitOpen), http.StatusServiceUnavailable},
		{New(ErrInvalidInput, http.StatusTeapot, "custom"), http.StatusTeapot},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusCode(tt.err), tt.err.Error())
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	err := Newf(ErrDocumentNotFound, http.StatusNotFound, "document %q", "d1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Equal(t, `document not found: document "d1"`, err.Error())
}
