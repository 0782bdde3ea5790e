// Package domain holds the prompt entity, its query types and the error
// taxonomy shared by the repository, the resolver and the transport layer.
package domain

import "errors"

// Sentinel errors for prompt operations.
var (
	// ErrNotFound signals an absent id, natural key or namespace default.
	// It is a clean "absent" result, never retried automatically.
	ErrNotFound = errors.New("prompt not found")

	// ErrConflict signals a natural-key collision on create or a lost
	// optimistic-lock race on update. The caller decides whether to retry
	// with fresh data.
	ErrConflict = errors.New("write conflict")

	// ErrUnavailable signals a transport failure against the underlying
	// store. Safe to retry with backoff: the store's atomic commit never
	// half-applies a multi-key write.
	ErrUnavailable = errors.New("storage unavailable")
)

// ValidationError reports a malformed or missing input field.
// Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
