package software

import (
	"log/slog"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
	"github.com/ReinaS-64892/TTCE-Wgpu/internal/shader"
)

// Kernel runs one shader invocation on the CPU. id is the global
// invocation ID.
type Kernel func(inv *Invocation, id [3]uint32)

// Invocation exposes the resources of the bind group a dispatch runs with.
type Invocation struct {
	textures map[uint32]*texture
	buffers  map[uint32]*buffer
}

// TextureSize returns the size of the texture bound at slot, or zeros when
// no texture is bound there.
func (inv *Invocation) TextureSize(slot uint32) (width, height uint32) {
	t, ok := inv.textures[slot]
	if !ok {
		return 0, 0
	}
	return t.width, t.height
}

// Load reads a texel as a shader would. Out of range coordinates read as zero.
func (inv *Invocation) Load(slot, x, y uint32) [4]float32 {
	t, ok := inv.textures[slot]
	if !ok || x >= t.width || y >= t.height {
		return [4]float32{}
	}
	bs := t.format.BlockSize()
	off := (y*t.width + x) * bs
	return decodeTexel(t.format, t.data[off:off+bs])
}

// Store writes a texel. Out of range coordinates are ignored.
func (inv *Invocation) Store(slot, x, y uint32, v [4]float32) {
	t, ok := inv.textures[slot]
	if !ok || x >= t.width || y >= t.height {
		return
	}
	bs := t.format.BlockSize()
	off := (y*t.width + x) * bs
	encodeTexel(t.format, t.data[off:off+bs], v)
}

// Buffer returns the backing bytes of the buffer bound at slot. Writes are
// visible to later commands.
func (inv *Invocation) Buffer(slot uint32) []byte {
	b, ok := inv.buffers[slot]
	if !ok {
		return nil
	}
	return b.data
}

// copyKernel returns a kernel copying texels from src to dst at the same
// coordinates, converting between the bound formats.
func copyKernel(src, dst uint32) Kernel {
	return func(inv *Invocation, id [3]uint32) {
		w, h := inv.TextureSize(dst)
		if id[0] >= w || id[1] >= h {
			return
		}
		inv.Store(dst, id[0], id[1], inv.Load(src, id[0], id[1]))
	}
}

// detectKernel recognizes texel copy shaders: exactly one read-only and one
// write-only storage image and nothing else.
func detectKernel(source string, logger *slog.Logger) (Kernel, bool) {
	module, err := shader.Parse(source)
	if err != nil {
		return nil, false
	}
	bindings, err := shader.Reflect(module, logger)
	if err != nil || len(bindings) != 2 {
		return nil, false
	}
	var src, dst *shader.Binding
	for i := range bindings {
		b := &bindings[i]
		if b.Layout.Type != gpucore.BindingTypeStorageTexture {
			return nil, false
		}
		switch b.Layout.Access {
		case gpucore.StorageAccessReadOnly:
			src = b
		case gpucore.StorageAccessWriteOnly:
			dst = b
		}
	}
	if src == nil || dst == nil {
		return nil, false
	}
	return copyKernel(src.Slot, dst.Slot), true
}

func nopKernel(*Invocation, [3]uint32) {}
