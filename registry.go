package ttce

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gogpu/naga/ir"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
	"github.com/ReinaS-64892/TTCE-Wgpu/internal/shader"
	"github.com/ReinaS-64892/TTCE-Wgpu/toolchain"
)

// ShaderID identifies a registered shader. IDs are dense indices issued in
// registration order and stay valid for the lifetime of the Device.
type ShaderID uint32

// BindingType is the kind of resource a binding slot accepts.
type BindingType uint8

// Binding types.
const (
	BindingConstantBuffer BindingType = iota + 1
	BindingStorageBuffer
	BindingReadWriteTexture
)

func (t BindingType) String() string {
	switch t {
	case BindingConstantBuffer:
		return "ConstantBuffer"
	case BindingStorageBuffer:
		return "StorageBuffer"
	case BindingReadWriteTexture:
		return "ReadWriteTexture"
	default:
		return fmt.Sprintf("BindingType(%d)", uint8(t))
	}
}

// Binding describes one classified group 0 resource of a shader.
type Binding struct {
	Name string
	Slot uint32
	Type BindingType
}

// CompiledShader is a registered compute pipeline with its reflected
// binding map. It is immutable.
type CompiledShader struct {
	name      string
	workGroup [3]uint32
	bindMap   map[string]uint32
	typeMap   map[uint32]BindingType

	// layout holds every group 0 entry, unclassified ones included, in slot order.
	layout []gpucore.BindGroupLayoutEntry

	module          gpucore.ShaderModuleID
	bindGroupLayout gpucore.BindGroupLayoutID
	pipelineLayout  gpucore.PipelineLayoutID
	pipeline        gpucore.ComputePipelineID
}

// Name returns the name the shader was registered under.
func (cs *CompiledShader) Name() string { return cs.name }

// WorkGroupSize returns the work-group size after the 32x32x1 clamp.
func (cs *CompiledShader) WorkGroupSize() [3]uint32 { return cs.workGroup }

// BindIndex returns the slot of the named binding.
func (cs *CompiledShader) BindIndex(name string) (uint32, bool) {
	slot, ok := cs.bindMap[name]
	return slot, ok
}

// BindingType returns the reflected type of slot.
func (cs *CompiledShader) BindingType(slot uint32) (BindingType, bool) {
	t, ok := cs.typeMap[slot]
	return t, ok
}

// Bindings returns the classified bindings in slot order.
func (cs *CompiledShader) Bindings() []Binding {
	out := make([]Binding, 0, len(cs.bindMap))
	for name, slot := range cs.bindMap {
		out = append(out, Binding{Name: name, Slot: slot, Type: cs.typeMap[slot]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

func (cs *CompiledShader) layoutEntry(slot uint32) (gpucore.BindGroupLayoutEntry, bool) {
	for _, e := range cs.layout {
		if e.Binding == slot {
			return e, true
		}
	}
	return gpucore.BindGroupLayoutEntry{}, false
}

func (cs *CompiledShader) release(gpu gpucore.GPUAdapter) {
	gpu.DestroyComputePipeline(cs.pipeline)
	gpu.DestroyPipelineLayout(cs.pipelineLayout)
	gpu.DestroyBindGroupLayout(cs.bindGroupLayout)
	gpu.DestroyShaderModule(cs.module)
}

// RegisterShader compiles inline HLSL source and registers the result.
// Storage images declared rgba32float are rewritten to the RGBA format of
// the device default.
func (d *Device) RegisterShader(ctx context.Context, name, source string) (ShaderID, error) {
	return d.registerHLSL(ctx, name, toolchain.NewRequest(name, source))
}

// RegisterShaderFile reads an HLSL file and registers it under its base
// name. Relative includes resolve against the file's directory.
func (d *Device) RegisterShaderFile(ctx context.Context, path string) (ShaderID, error) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, &CompileError{Shader: name, Kind: ErrToolchainFailure, Err: err}
	}
	return d.registerHLSL(ctx, name, toolchain.NewRequest(path, string(data)))
}

// RegisterWGSL registers WGSL source as is, without the storage format
// rewrite. The work-group clamp and group 0 reflection still apply.
func (d *Device) RegisterWGSL(ctx context.Context, name, source string) (ShaderID, error) {
	bc, err := d.wgsl.Compile(ctx, &toolchain.Request{
		Name:       name,
		Source:     source,
		EntryPoint: toolchain.DefaultEntryPoint,
	})
	if err != nil {
		return 0, &CompileError{Shader: name, Kind: ErrToolchainFailure, Err: err}
	}
	return d.register(name, bc.WGSL, ir.StorageFormatUnknown)
}

func (d *Device) registerHLSL(ctx context.Context, name string, req *toolchain.Request) (ShaderID, error) {
	d.logger.Debug("ttce: compiling shader", "name", name)
	bc, err := d.compiler.Compile(ctx, req)
	if err != nil {
		return 0, &CompileError{Shader: name, Kind: ErrToolchainFailure, Err: err}
	}
	target := PixelFormat{Format: d.DefaultFormat(), Channel: ChannelRGBA}
	return d.register(name, bc.WGSL, target.StorageFormat())
}

// register runs the IR pass over module text, builds the pipeline and
// appends it to the registry.
func (d *Device) register(name, source string, format ir.StorageFormat) (ShaderID, error) {
	m, err := shader.Compile(source, shader.Options{StorageFormat: format, Logger: d.logger})
	if err != nil {
		kind := ErrValidationFailure
		if errors.Is(err, shader.ErrParse) {
			kind = ErrMalformedBytecode
		}
		return 0, &CompileError{Shader: name, Kind: kind, Err: err}
	}
	if m.Clamped {
		d.logger.Debug("ttce: work group clamped to 16x16x1", "name", name)
	}

	cs, err := d.buildPipeline(name, source, m)
	if err != nil {
		return 0, &CompileError{Shader: name, Kind: ErrValidationFailure, Err: err}
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cs.release(d.gpu)
		return 0, ErrClosed
	}
	id := ShaderID(len(d.shaders))
	d.shaders = append(d.shaders, cs)
	d.mu.Unlock()

	d.logger.Debug("ttce: shader registered",
		"name", name, "id", id, "workGroup", cs.workGroup,
		"bindings", len(cs.bindMap), "rewritten", m.Rewritten)
	return id, nil
}

// buildPipeline creates the GPU objects for m with an explicit layout
// derived from its reflected bindings.
func (d *Device) buildPipeline(name, source string, m *shader.Module) (_ *CompiledShader, err error) {
	cs := &CompiledShader{
		name:      name,
		workGroup: m.WorkGroup,
		bindMap:   make(map[string]uint32),
		typeMap:   make(map[uint32]BindingType),
		layout:    m.LayoutEntries(),
	}
	for _, b := range m.Bindings {
		t, ok := bindingTypeOf(b.Kind)
		if !ok {
			d.logger.Debug("ttce: unclassified binding omitted", "shader", name, "name", b.Name, "slot", b.Slot)
			continue
		}
		cs.bindMap[b.Name] = b.Slot
		cs.typeMap[b.Slot] = t
	}

	defer func() {
		if err != nil {
			cs.release(d.gpu)
		}
	}()

	cs.module, err = d.gpu.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label:  name,
		SPIRV:  m.SPIRV,
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module: %w", err)
	}
	cs.bindGroupLayout, err = d.gpu.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label:   name,
		Entries: cs.layout,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}
	cs.pipelineLayout, err = d.gpu.CreatePipelineLayout([]gpucore.BindGroupLayoutID{cs.bindGroupLayout})
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	cs.pipeline, err = d.gpu.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        name,
		Layout:       cs.pipelineLayout,
		ShaderModule: cs.module,
		EntryPoint:   m.EntryPoint,
	})
	if err != nil {
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}
	return cs, nil
}

func bindingTypeOf(k shader.Kind) (BindingType, bool) {
	switch k {
	case shader.KindConstantBuffer:
		return BindingConstantBuffer, true
	case shader.KindStorageBuffer:
		return BindingStorageBuffer, true
	case shader.KindReadWriteTexture:
		return BindingReadWriteTexture, true
	default:
		return 0, false
	}
}
