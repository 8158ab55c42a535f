// Package errors collects the sentinel errors callers branch on and maps
// them to HTTP status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/vector"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/resilience"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already exists")
	ErrTermNotFound     = errors.New("term not found")
	ErrInvalidInput     = errors.New("invalid input")

	ErrUninitializedDictionary = dictionary.ErrUninitializedDictionary
	ErrNullVector              = vector.ErrNullVector
	ErrZeroNorm                = vector.ErrZeroNorm
	ErrMissingStopWords        = tokenizer.ErrMissingStopWords
)

// AppError pins a status code and a client-facing message to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps err to the status a handler should answer with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrTermNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDocumentExists), errors.Is(err, ErrUninitializedDictionary):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNullVector), errors.Is(err, ErrZeroNorm):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
