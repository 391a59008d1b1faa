package domain

import "github.com/pkg/errors"

// Error sentinels for the storage core. Layers wrap these with context via
// pkg/errors; callers classify with errors.Is.
var (
	// ErrValidation marks a malformed or incomplete request parameter.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound marks a lookup that must distinguish absence from an
	// empty result. Most operations treat absence as a no-op instead.
	ErrNotFound = errors.New("not found")

	// ErrDecode marks stored geometry data that is no longer well-formed.
	ErrDecode = errors.New("malformed stored data")

	// ErrStorage marks an underlying storage engine fault.
	ErrStorage = errors.New("storage failure")
)
