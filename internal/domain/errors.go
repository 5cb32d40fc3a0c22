package domain

import "errors"

// Domain errors. Callers match them with errors.Is; the wrapped message
// carries the detail.
var (
	// ErrValidation indicates user input that cannot be accepted, such as an
	// empty comment or a selection that does not occur in the document.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownDocument indicates an annotation refers to a document that is
	// not in the library.
	ErrUnknownDocument = errors.New("unknown document")

	// ErrInvalidOffsets indicates annotation offsets that do not address the
	// selected text within the document body.
	ErrInvalidOffsets = errors.New("invalid offsets")

	// ErrPersistence indicates the durable store rejected a write or read.
	ErrPersistence = errors.New("persistence failed")
)
