package ttce

import (
	"errors"
	"fmt"
)

// Registration errors. They are reported as the Kind of a *CompileError.
var (
	// ErrToolchainFailure is returned when the shader compiler cannot be run,
	// reports a failure, or the source cannot be read.
	ErrToolchainFailure = errors.New("ttce: toolchain failure")

	// ErrMalformedBytecode is returned when compiler output cannot be parsed.
	ErrMalformedBytecode = errors.New("ttce: malformed bytecode")

	// ErrValidationFailure is returned when the parsed module is invalid or
	// the GPU rejects the pipeline built from it.
	ErrValidationFailure = errors.New("ttce: validation failure")
)

// Resource and binding errors.
var (
	// ErrUnknownShader is returned for a ShaderID this device never issued.
	ErrUnknownShader = errors.New("ttce: unknown shader id")

	// ErrBindingNotFound is returned when a slot is not in the shader's binding map.
	ErrBindingNotFound = errors.New("ttce: binding not found")

	// ErrBindingTypeMismatch is returned when a resource kind does not match
	// the reflected type of its slot.
	ErrBindingTypeMismatch = errors.New("ttce: binding type mismatch")

	// ErrSizeMismatch is the panic value wrapped for byte lengths or texture
	// sizes that contradict each other.
	ErrSizeMismatch = errors.New("ttce: size mismatch")

	// ErrInvalidSize is returned when a texture is requested with a zero dimension.
	ErrInvalidSize = errors.New("ttce: invalid texture size")

	// ErrInvalidFormat is returned for a format or channel outside the 12
	// legal combinations.
	ErrInvalidFormat = errors.New("ttce: invalid texture format")

	// ErrNoConverter is returned when no conversion shader exists for a
	// format pair.
	ErrNoConverter = errors.New("ttce: no format converter")

	// ErrNotDownloadable is returned when downloading a storage buffer that
	// was created without readback capability.
	ErrNotDownloadable = errors.New("ttce: storage buffer is not downloadable")

	// ErrMappingFailure is returned when the GPU declines to map a buffer.
	ErrMappingFailure = errors.New("ttce: buffer mapping failed")

	// ErrClosed is returned when using a device, context or handler after Close.
	ErrClosed = errors.New("ttce: use of closed object")
)

// CompileError reports a failed shader registration.
// errors.Is matches both Kind and the underlying cause.
type CompileError struct {
	// Shader is the name the shader was registered under.
	Shader string

	// Kind is ErrToolchainFailure, ErrMalformedBytecode or ErrValidationFailure.
	Kind error

	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Shader, e.Err)
}

func (e *CompileError) Unwrap() []error { return []error{e.Kind, e.Err} }

func sizeMismatch(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrSizeMismatch}, args...)...)
}
