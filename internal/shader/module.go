// Package shader turns WGSL text into a reflected, rewritten compute module
// ready for pipeline creation.
//
// The pass runs in a fixed order: parse, validate, storage-format rewrite,
// work-group clamp, group 0 binding reflection and SPIR-V emission.
package shader

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// EntryPointName is the compute entry point every engine shader exports.
const EntryPointName = "CSMain"

var (
	// ErrParse is returned when the source cannot be parsed or lowered to IR.
	ErrParse = errors.New("shader: parse failed")

	// ErrValidate is returned when the IR fails structural validation or
	// the module has no usable compute entry point.
	ErrValidate = errors.New("shader: validation failed")

	// ErrEmit is returned when SPIR-V generation fails.
	ErrEmit = errors.New("shader: SPIR-V generation failed")
)

// Options controls the rewrite passes.
type Options struct {
	// StorageFormat replaces rgba32float on 2D non-arrayed storage images.
	// StorageFormatUnknown leaves the module untouched.
	StorageFormat ir.StorageFormat

	// Logger receives diagnostics about skipped bindings. Nil discards them.
	Logger *slog.Logger
}

// Module is a compiled compute shader with its reflection data.
type Module struct {
	IR         *ir.Module
	EntryPoint string
	WorkGroup  [3]uint32
	Bindings   []Binding
	SPIRV      []uint32

	// Rewritten counts storage image types whose format was replaced.
	Rewritten int
	// Clamped reports whether a 32x32x1 work group was reduced.
	Clamped bool
}

// Compile runs the whole pass over WGSL source.
func Compile(source string, opts Options) (*Module, error) {
	module, err := Parse(source)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := &Module{IR: module}
	if opts.StorageFormat != ir.StorageFormatUnknown {
		m.Rewritten = RewriteStorageFormat(module, ir.StorageFormatRgba32Float, opts.StorageFormat)
	}
	m.Clamped = ClampWorkGroup(module)
	if err := Validate(module); err != nil {
		return nil, err
	}

	ep, err := findEntryPoint(module)
	if err != nil {
		return nil, err
	}
	m.EntryPoint = ep.Name
	m.WorkGroup = ep.Workgroup

	m.Bindings, err = Reflect(module, logger)
	if err != nil {
		return nil, err
	}

	m.SPIRV, err = EmitSPIRV(module)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Parse parses and lowers WGSL source into IR.
func Parse(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return module, nil
}

// Validate checks the IR for structural errors.
func Validate(module *ir.Module) error {
	verrs, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidate, err)
	}
	if len(verrs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidate, &verrs[0])
	}
	return nil
}

// EmitSPIRV serializes IR to SPIR-V words.
func EmitSPIRV(module *ir.Module) ([]uint32, error) {
	spirvBytes, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmit, err)
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// LayoutEntries returns the bind group layout entries for every binding,
// classified or not, in slot order.
func (m *Module) LayoutEntries() []gpucore.BindGroupLayoutEntry {
	entries := make([]gpucore.BindGroupLayoutEntry, 0, len(m.Bindings))
	for _, b := range m.Bindings {
		entries = append(entries, b.Layout)
	}
	return entries
}

func findEntryPoint(module *ir.Module) (*ir.EntryPoint, error) {
	var first *ir.EntryPoint
	for i := range module.EntryPoints {
		ep := &module.EntryPoints[i]
		if ep.Stage != ir.StageCompute {
			continue
		}
		if ep.Name == EntryPointName {
			return ep, nil
		}
		if first == nil {
			first = ep
		}
	}
	if first == nil {
		return nil, fmt.Errorf("%w: no compute entry point", ErrValidate)
	}
	return first, nil
}
