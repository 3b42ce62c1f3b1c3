package domain

import "errors"

var (
	// ErrInvalidInput marks malformed requests. Not retryable.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks references to unknown entities or records.
	ErrNotFound = errors.New("not found")

	// ErrComputeFailure marks numeric failures while producing a forecast.
	ErrComputeFailure = errors.New("compute failure")

	// ErrPersistenceFailure marks a failed ResultStore write. The result that
	// accompanies it is still valid.
	ErrPersistenceFailure = errors.New("persistence failure")
)
