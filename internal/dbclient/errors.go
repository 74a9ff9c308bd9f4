package dbclient

import (
	"errors"
	"fmt"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// ErrorKind classifies a query failure for callers that branch on it.
type ErrorKind string

const (
	KindUnknownSource ErrorKind = "unknown_source"
	KindTimeout       ErrorKind = "timeout"
	KindRejected      ErrorKind = "rejected"
	KindUpstream      ErrorKind = "upstream"
)

// QueryError is a structured error from the remote SQL layer.
type QueryError struct {
	Kind   ErrorKind
	Source model.Source
	Detail string
}

func (e *QueryError) Error() string {
	return e.Detail
}

func newUnknownSourceError(source model.Source) *QueryError {
	return &QueryError{
		Kind:   KindUnknownSource,
		Source: source,
		Detail: fmt.Sprintf("unknown database: %s", source),
	}
}

func newTimeoutError(source model.Source, attempts int) *QueryError {
	return &QueryError{
		Kind:   KindTimeout,
		Source: source,
		Detail: fmt.Sprintf("Query timed out after %d attempts. Try a simpler query with more restrictive WHERE clauses.", attempts),
	}
}

func newRejectedError(source model.Source, detail string) *QueryError {
	return &QueryError{
		Kind:   KindRejected,
		Source: source,
		Detail: fmt.Sprintf("Query error: %s", detail),
	}
}

func newUpstreamError(source model.Source, cause error) *QueryError {
	return &QueryError{
		Kind:   KindUpstream,
		Source: source,
		Detail: fmt.Sprintf("Failed to query %s: %v", source, cause),
	}
}

// IsTimeout reports whether err is a query timeout after retry exhaustion.
func IsTimeout(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Kind == KindTimeout
}

// IsRejected reports whether err is an upstream 4xx rejection.
func IsRejected(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Kind == KindRejected
}
