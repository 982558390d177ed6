package native

import "errors"

// Package errors for the HAL backend.
var (
	// ErrNotInitialized is returned when the adapter is used after Destroy.
	ErrNotInitialized = errors.New("native: adapter destroyed")

	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNotFound is returned when an ID does not name a live resource.
	ErrNotFound = errors.New("native: resource not found")

	// ErrUnsupportedFormat is returned for texture formats the backend
	// cannot allocate.
	ErrUnsupportedFormat = errors.New("native: unsupported texture format")

	// ErrInvalidDimensions is returned when width or height is invalid.
	ErrInvalidDimensions = errors.New("native: invalid dimensions")

	// ErrTimeout is returned when a blocking Poll does not see the queue
	// drain in time.
	ErrTimeout = errors.New("native: GPU timeout")
)
