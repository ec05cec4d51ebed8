// Package apperr defines the typed errors shared by the search pipeline and
// the HTTP layer, and their mapping onto status codes.
package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by the component that produced it.
type Kind string

const (
	KindVectorSearch     Kind = "vector_search"
	KindEncoder          Kind = "encoder"
	KindDatabase         Kind = "database"
	KindConfiguration    Kind = "configuration"
	KindLLM              Kind = "llm"
	KindLLMRelevancy     Kind = "llm_relevancy"
	KindLLMSummary       Kind = "llm_summary"
	KindHeaderValidation Kind = "header_validation"
	KindValidation       Kind = "validation"
)

// Error carries a Kind alongside the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches structured context for logging.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// New returns an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind caused by err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the message of the outermost *Error in err's chain,
// falling back to err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsLLM reports whether err came from any LLM stage.
func IsLLM(err error) bool {
	return IsKind(err, KindLLM) || IsKind(err, KindLLMRelevancy) || IsKind(err, KindLLMSummary)
}

// StatusFor maps an error onto an HTTP status code. Context deadlines and
// cancellations take precedence over the error kind.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	switch KindOf(err) {
	case KindEncoder, KindDatabase:
		return http.StatusServiceUnavailable
	case KindHeaderValidation:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes a {"detail": ...} body with the given status.
func WriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
