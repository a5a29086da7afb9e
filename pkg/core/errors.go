// Package core provides the memory engine: it records conversation turns and
// prepares bounded prompt contexts from transcripts, summaries and long-term
// memories.
package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine matches exactly one of
// these with errors.Is.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	// The engine refuses to start.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStorage indicates that a durable store was unreachable or rejected
	// an operation.
	ErrStorage = errors.New("storage operation failed")

	// ErrBackend indicates that the embedding or language-model backend timed
	// out or failed.
	ErrBackend = errors.New("backend operation failed")

	// ErrValidation indicates malformed or oversized content, or an embedding
	// of the wrong dimension.
	ErrValidation = errors.New("validation failed")
)

// MemoryError wraps errors with operation context and an error kind.
//
// Example:
//
//	err := &MemoryError{
//	    Op:   "RecordTurn",
//	    Kind: ErrStorage,
//	    Err:  io.ErrUnexpectedEOF,
//	}
//	// Error() returns: "recall: RecordTurn: storage operation failed: unexpected EOF"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Kind is one of the ErrXxx sentinels above.
	Kind error

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
func (e *MemoryError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("recall: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("recall: %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the error kind, so that
// errors.Is(err, ErrStorage) works alongside matching the cause.
func (e *MemoryError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NewMemoryError creates a new MemoryError of the given kind.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("RecordTurn", ErrStorage, err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "RecordTurn", "PrepareContext")
//   - kind: One of ErrInvalidConfig, ErrStorage, ErrBackend, ErrValidation
//   - err: The underlying error to wrap
func NewMemoryError(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

func configError(format string, args ...interface{}) error {
	return NewMemoryError("Validate", ErrInvalidConfig, fmt.Errorf(format, args...))
}
