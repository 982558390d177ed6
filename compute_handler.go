package ttce

import (
	"fmt"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// ComputeHandler binds resources to the slots of one shader and records
// dispatches into its Context. Bindings persist across dispatches until
// replaced. Close drops the handler's references to bound storage buffers;
// textures and buffers themselves stay owned by the caller.
type ComputeHandler struct {
	ctx    *Context
	shader *CompiledShader

	textures  map[uint32]*RenderTexture
	constants map[uint32][]byte
	buffers   map[uint32]*StorageBuffer
	closed    bool
}

// ComputeHandler returns a handler for the shader registered under id.
func (c *Context) ComputeHandler(id ShaderID) (*ComputeHandler, error) {
	if c.closed {
		return nil, ErrClosed
	}
	cs, err := c.dev.Shader(id)
	if err != nil {
		return nil, err
	}
	return &ComputeHandler{
		ctx:       c,
		shader:    cs,
		textures:  make(map[uint32]*RenderTexture),
		constants: make(map[uint32][]byte),
		buffers:   make(map[uint32]*StorageBuffer),
	}, nil
}

// Shader returns the shader the handler dispatches.
func (h *ComputeHandler) Shader() *CompiledShader { return h.shader }

// BindIndex returns the slot of the named binding.
func (h *ComputeHandler) BindIndex(name string) (uint32, bool) {
	return h.shader.BindIndex(name)
}

// WorkGroupSize returns the shader's work-group size.
func (h *ComputeHandler) WorkGroupSize() [3]uint32 { return h.shader.WorkGroupSize() }

func (h *ComputeHandler) check(slot uint32, want BindingType) error {
	if h.closed {
		return ErrClosed
	}
	got, ok := h.shader.BindingType(slot)
	if !ok {
		return fmt.Errorf("%w: %s has no binding at slot %d", ErrBindingNotFound, h.shader.name, slot)
	}
	if got != want {
		return fmt.Errorf("%w: %s slot %d is %v, not %v", ErrBindingTypeMismatch, h.shader.name, slot, got, want)
	}
	return nil
}

// unbind drops whatever resource slot currently holds.
func (h *ComputeHandler) unbind(slot uint32) {
	delete(h.textures, slot)
	delete(h.constants, slot)
	if b, ok := h.buffers[slot]; ok {
		b.Release()
		delete(h.buffers, slot)
	}
}

// BindTexture binds rt to a ReadWriteTexture slot. A storage image slot
// only accepts textures in its declared format.
func (h *ComputeHandler) BindTexture(slot uint32, rt *RenderTexture) error {
	if err := h.check(slot, BindingReadWriteTexture); err != nil {
		return err
	}
	if e, ok := h.shader.layoutEntry(slot); ok && e.Type == gpucore.BindingTypeStorageTexture &&
		e.StorageFormat != rt.format.GPUFormat() {
		return fmt.Errorf("%w: %s slot %d expects %v, texture is %v",
			ErrInvalidFormat, h.shader.name, slot, e.StorageFormat, rt.format.GPUFormat())
	}
	h.unbind(slot)
	h.textures[slot] = rt
	return nil
}

// BindConstants binds a copy of data to a ConstantBuffer slot.
func (h *ComputeHandler) BindConstants(slot uint32, data []byte) error {
	if err := h.check(slot, BindingConstantBuffer); err != nil {
		return err
	}
	h.unbind(slot)
	h.constants[slot] = append([]byte(nil), data...)
	return nil
}

// BindStorageBuffer binds buf to a StorageBuffer slot. The handler holds a
// reference to buf until it is replaced or the handler is closed.
func (h *ComputeHandler) BindStorageBuffer(slot uint32, buf *StorageBuffer) error {
	if err := h.check(slot, BindingStorageBuffer); err != nil {
		return err
	}
	buf.Retain()
	h.unbind(slot)
	h.buffers[slot] = buf
	return nil
}

// Dispatch builds a bind group from the current bindings and records a
// dispatch of x*y*z work groups. Every group 0 slot must be bound. The
// recorded dispatch holds its own references to the bound storage buffers
// until its submission completes.
func (h *ComputeHandler) Dispatch(x, y, z uint32) error {
	if h.closed {
		return ErrClosed
	}
	c := h.ctx
	if c.closed {
		return ErrClosed
	}
	gpu := c.dev.gpu

	entries := make([]gpucore.BindGroupEntry, 0, len(h.shader.layout))
	var (
		uniforms []gpucore.BufferID
		used     []*StorageBuffer
	)
	release := func() {
		for _, id := range uniforms {
			gpu.DestroyBuffer(id)
		}
		for _, b := range used {
			b.Release()
		}
	}
	for _, le := range h.shader.layout {
		e := gpucore.BindGroupEntry{Binding: le.Binding}
		if rt, ok := h.textures[le.Binding]; ok {
			e.TextureView = rt.view
		} else if b, ok := h.buffers[le.Binding]; ok {
			used = append(used, b.Retain())
			e.Buffer, e.Size = b.id, b.size
		} else if data, ok := h.constants[le.Binding]; ok {
			size := uint64(max((len(data)+15)&^15, 16))
			id, err := gpu.CreateBuffer(&gpucore.BufferDesc{
				Label:    h.shader.name + " constants",
				Size:     size,
				Usage:    gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst,
				Contents: data,
			})
			if err != nil {
				release()
				return fmt.Errorf("ttce: create constant buffer: %w", err)
			}
			uniforms = append(uniforms, id)
			e.Buffer, e.Size = id, size
		} else {
			release()
			return fmt.Errorf("%w: %s slot %d is not bound", ErrBindingNotFound, h.shader.name, le.Binding)
		}
		entries = append(entries, e)
	}

	group, err := gpu.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   h.shader.name,
		Layout:  h.shader.bindGroupLayout,
		Entries: entries,
	})
	if err != nil {
		release()
		return fmt.Errorf("ttce: create bind group: %w", err)
	}

	enc, err := c.commandEncoder()
	if err != nil {
		gpu.DestroyBindGroup(group)
		release()
		return err
	}
	c.retire(func() {
		gpu.DestroyBindGroup(group)
		release()
	})

	pass := enc.BeginComputePass(h.shader.name)
	pass.SetPipeline(h.shader.pipeline)
	pass.SetBindGroup(0, group)
	pass.Dispatch(x, y, z)
	pass.End()
	c.dispatches++

	return c.checkBacklog()
}

// DispatchFor dispatches enough work groups to cover a width x height grid.
func (h *ComputeHandler) DispatchFor(width, height uint32) error {
	wg := h.shader.workGroup
	return h.Dispatch(groupCount(width, wg[0]), groupCount(height, wg[1]), 1)
}

// groupCount is ceil(n/size), at least 1.
func groupCount(n, size uint32) uint32 {
	if size == 0 {
		size = 1
	}
	return max((n+size-1)/size, 1)
}

// Close drops the handler's bindings. The handler cannot be used afterwards.
func (h *ComputeHandler) Close() {
	if h.closed {
		return
	}
	for slot := range h.buffers {
		h.unbind(slot)
	}
	clear(h.textures)
	clear(h.constants)
	h.closed = true
}
