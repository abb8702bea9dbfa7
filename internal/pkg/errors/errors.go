package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
	ErrTooMany  = errors.New("too many requests")
	ErrInternal = errors.New("internal")

	// External capability failures. Embedding/completion failures are fatal
	// to the turn that hit them and safe to retry as a whole; search failures
	// only degrade the turn.
	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrCompletionUnavailable = errors.New("completion unavailable")
	ErrSearchUnavailable     = errors.New("search unavailable")

	// ErrDimensionMismatch indicates a contract violation: every embedding in
	// the system must share one dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrMemoryConflict means a summary compare-and-swap lost to a concurrent
	// writer on the same chat.
	ErrMemoryConflict = errors.New("memory write conflict")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
