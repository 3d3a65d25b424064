package registry

import (
	"errors"

	"agentregistry/internal/access"
	"agentregistry/internal/storage"
)

// Callers should match these with errors.Is.
var (
	// ErrValidation is returned for malformed input, before any state change
	ErrValidation = errors.New("validation error")

	// ErrPermissionDenied is returned when the caller lacks the capability, before any state change
	ErrPermissionDenied = access.ErrPermissionDenied

	// ErrNotFound is returned for operations on an identity id that does not exist
	ErrNotFound = storage.ErrNotFound
)
