// Package toolchain compiles HLSL compute shaders into the WGSL module text
// the engine's IR pass consumes.
//
// The default [DXC] compiler drives two external tools: dxc turns HLSL into
// SPIR-V and a translator (the naga CLI by default) turns SPIR-V into WGSL.
// [WGSL] passes WGSL source through unchanged and is used for shaders the
// engine synthesizes itself.
//
// Both resolve #include directives in Go through an [IncludeFunc] before the
// source reaches any tool.
package toolchain

import (
	"context"
	"errors"
	"fmt"
)

// Fixed compilation parameters for engine shaders.
const (
	DefaultEntryPoint = "CSMain"
	DefaultProfile    = "cs_6_0"
)

// DefaultFlags are passed to dxc for every engine shader.
var DefaultFlags = []string{"-spirv", "-HV", "2018"}

var (
	// ErrUnavailable is returned when a compiler tool cannot be started.
	ErrUnavailable = errors.New("toolchain: compiler unavailable")

	// ErrCompile is returned when a compiler tool reports a failure.
	ErrCompile = errors.New("toolchain: compilation failed")

	// ErrInclude is returned when an #include cannot be resolved.
	ErrInclude = errors.New("toolchain: include resolution failed")
)

// Compiler produces WGSL module text from shader source.
type Compiler interface {
	Compile(ctx context.Context, req *Request) (*Bytecode, error)
}

// Request describes one compilation.
type Request struct {
	// Name identifies the source, usually its path. Relative includes are
	// resolved against its directory.
	Name string

	Source     string
	EntryPoint string
	Profile    string
	Flags      []string

	// Include overrides the compiler's include resolver when set.
	Include IncludeFunc
}

// NewRequest returns a request with the fixed engine entry point, profile
// and flags.
func NewRequest(name, source string) *Request {
	return &Request{
		Name:       name,
		Source:     source,
		EntryPoint: DefaultEntryPoint,
		Profile:    DefaultProfile,
		Flags:      append([]string(nil), DefaultFlags...),
	}
}

// Bytecode is the output of a compilation.
type Bytecode struct {
	Name string

	// WGSL is the module text handed to the IR parser.
	WGSL string

	// SPIRV is the intermediate dxc output, nil for WGSL passthrough.
	SPIRV []byte
}

// Error carries the diagnostic log of a failed tool run.
type Error struct {
	Tool string
	Log  string
	Err  error
}

func (e *Error) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("toolchain: %s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("toolchain: %s: %v\n%s", e.Tool, e.Err, e.Log)
}

func (e *Error) Unwrap() error { return e.Err }

// WGSL is a passthrough compiler for WGSL source.
type WGSL struct {
	// Include resolves #include directives. Nil uses FileIncluder().
	Include IncludeFunc
}

// Compile resolves includes and returns the source as module text.
func (w *WGSL) Compile(_ context.Context, req *Request) (*Bytecode, error) {
	include := req.Include
	if include == nil {
		include = w.Include
	}
	src, err := Preprocess(req.Name, req.Source, include)
	if err != nil {
		return nil, err
	}
	return &Bytecode{Name: req.Name, WGSL: src}, nil
}
