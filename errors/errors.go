package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)

// Sentinel errors for model-facing components
var (
	// ErrModelUnavailable indicates that every model tier was exhausted
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrMalformedOutput indicates the model response could not be parsed
	// into the expected shape
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrUnknownTemplate indicates the template identifier is not registered
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrSchemaSynthesis indicates question synthesis for a template failed
	// after all retries
	ErrSchemaSynthesis = errors.New("schema synthesis failed")

	// ErrIndexBuild indicates the knowledge index could not be built
	ErrIndexBuild = errors.New("index build failed")
)
