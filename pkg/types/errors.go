package types

import "errors"

// Error taxonomy for the optimization flow. Components wrap these with
// fmt.Errorf("...: %w", ...) so callers can classify failures without
// depending on internal packages.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCollaborator indicates the engine or embedder was unreachable or
	// returned malformed output.
	ErrCollaborator = errors.New("collaborator failed")
	// ErrPersistence indicates a store write failure.
	ErrPersistence = errors.New("persistence failed")
)
