//go:build !nogpu

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// commandEncoder implements gpucore.CommandEncoder over a hal.CommandEncoder.
//
// The first invalid command poisons the encoder: later commands are ignored
// and Finish reports the error.
type commandEncoder struct {
	adapter *HALAdapter
	encoder hal.CommandEncoder
	label   string
	err     error
	done    bool
}

func (e *commandEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *commandEncoder) usable() bool {
	return !e.done && e.err == nil
}

// transition records barriers moving each texture into usage.
func (e *commandEncoder) transition(usage gputypes.TextureUsage, ids ...gpucore.TextureID) {
	a := e.adapter
	a.mu.Lock()
	barriers := make([]hal.TextureBarrier, 0, len(ids))
	for _, id := range ids {
		entry, ok := a.textures[id]
		if !ok {
			a.mu.Unlock()
			e.fail(fmt.Errorf("%w: texture %d", ErrNotFound, id))
			return
		}
		if entry.usage == usage {
			continue
		}
		barriers = append(barriers, hal.TextureBarrier{
			Texture: entry.texture,
			Usage: hal.TextureUsageTransition{
				OldUsage: entry.usage,
				NewUsage: usage,
			},
		})
		entry.usage = usage
	}
	a.mu.Unlock()

	if len(barriers) > 0 {
		e.encoder.TransitionTextures(barriers)
	}
}

func (e *commandEncoder) texture(id gpucore.TextureID) (hal.Texture, bool) {
	e.adapter.mu.RLock()
	entry, ok := e.adapter.textures[id]
	e.adapter.mu.RUnlock()
	if !ok {
		e.fail(fmt.Errorf("%w: texture %d", ErrNotFound, id))
		return nil, false
	}
	return entry.texture, true
}

func (e *commandEncoder) buffer(id gpucore.BufferID) (hal.Buffer, bool) {
	e.adapter.mu.RLock()
	buffer, ok := e.adapter.buffers[id]
	e.adapter.mu.RUnlock()
	if !ok {
		e.fail(fmt.Errorf("%w: buffer %d", ErrNotFound, id))
		return nil, false
	}
	return buffer, true
}

// BeginComputePass begins a compute pass. Commands are replayed into a hal
// pass on End, once the bound textures are known and have been transitioned.
func (e *commandEncoder) BeginComputePass(label string) gpucore.ComputePassEncoder {
	return &computePassEncoder{encoder: e, label: label}
}

// CopyTextureToTexture copies a width x height region starting at the origin.
func (e *commandEncoder) CopyTextureToTexture(src, dst gpucore.TextureID, width, height uint32) {
	if !e.usable() {
		return
	}
	srcTex, ok := e.texture(src)
	if !ok {
		return
	}
	dstTex, ok := e.texture(dst)
	if !ok {
		return
	}
	e.transition(gputypes.TextureUsageCopySrc, src)
	e.transition(gputypes.TextureUsageCopyDst, dst)
	e.encoder.CopyTextureToTexture(srcTex, dstTex, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{Texture: srcTex, MipLevel: 0},
		DstBase: hal.ImageCopyTexture{Texture: dstTex, MipLevel: 0},
		Size:    hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	}})
}

// CopyTextureToBuffer copies a texture region for readback.
// WebGPU (and DX12) requires bytesPerRow aligned to 256 bytes.
func (e *commandEncoder) CopyTextureToBuffer(src gpucore.TextureID, dst gpucore.BufferID, width, height, bytesPerRow uint32) {
	if !e.usable() {
		return
	}
	if bytesPerRow%gpucore.CopyRowAlignment != 0 {
		e.fail(fmt.Errorf("native: bytesPerRow %d is not a multiple of %d", bytesPerRow, gpucore.CopyRowAlignment))
		return
	}
	srcTex, ok := e.texture(src)
	if !ok {
		return
	}
	dstBuf, ok := e.buffer(dst)
	if !ok {
		return
	}
	e.transition(gputypes.TextureUsageCopySrc, src)
	e.encoder.CopyTextureToBuffer(srcTex, dstBuf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: bytesPerRow, RowsPerImage: height},
		TextureBase:  hal.ImageCopyTexture{Texture: srcTex, MipLevel: 0},
		Size:         hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	}})
}

// CopyBufferToBuffer copies size bytes between buffers.
func (e *commandEncoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset, size uint64) {
	if !e.usable() {
		return
	}
	srcBuf, ok := e.buffer(src)
	if !ok {
		return
	}
	dstBuf, ok := e.buffer(dst)
	if !ok {
		return
	}
	e.encoder.CopyBufferToBuffer(srcBuf, dstBuf, []hal.BufferCopy{
		{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size},
	})
}

// Finish ends recording and parks the command buffer until Submit.
// A failed Finish leaves the encoder open; the caller abandons it with
// Discard.
func (e *commandEncoder) Finish() (gpucore.CommandBufferID, error) {
	if e.done {
		return gpucore.InvalidID, fmt.Errorf("native: encoder %s already finished", e.label)
	}
	if e.err != nil {
		return gpucore.InvalidID, e.err
	}

	cmdBuf, err := e.encoder.EndEncoding()
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: end encoding: %w", err)
	}
	e.done = true

	id := gpucore.CommandBufferID(e.adapter.newID())
	e.adapter.mu.Lock()
	e.adapter.commandBuffers[id] = cmdBuf
	e.adapter.mu.Unlock()
	return id, nil
}

// Discard abandons recording.
func (e *commandEncoder) Discard() {
	if e.done {
		return
	}
	e.done = true
	e.encoder.DiscardEncoding()
}

// === Compute Pass Encoder ===

// computePassEncoder implements gpucore.ComputePassEncoder.
type computePassEncoder struct {
	encoder *commandEncoder
	label   string
	ops     []func(hal.ComputePassEncoder)
	groups  []gpucore.BindGroupID
	ended   bool
}

// SetPipeline sets the active compute pipeline.
func (p *computePassEncoder) SetPipeline(pipeline gpucore.ComputePipelineID) {
	a := p.encoder.adapter
	a.mu.RLock()
	halPipeline, ok := a.computePipelines[pipeline]
	a.mu.RUnlock()

	if !ok {
		p.encoder.fail(fmt.Errorf("%w: compute pipeline %d", ErrNotFound, pipeline))
		return
	}
	p.ops = append(p.ops, func(pass hal.ComputePassEncoder) {
		pass.SetPipeline(halPipeline)
	})
}

// SetBindGroup sets a bind group at the specified index.
func (p *computePassEncoder) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	a := p.encoder.adapter
	a.mu.RLock()
	entry, ok := a.bindGroups[group]
	a.mu.RUnlock()

	if !ok {
		p.encoder.fail(fmt.Errorf("%w: bind group %d", ErrNotFound, group))
		return
	}
	p.groups = append(p.groups, group)
	p.ops = append(p.ops, func(pass hal.ComputePassEncoder) {
		pass.SetBindGroup(index, entry.group, nil)
	})
}

// Dispatch dispatches compute workgroups.
func (p *computePassEncoder) Dispatch(x, y, z uint32) {
	p.ops = append(p.ops, func(pass hal.ComputePassEncoder) {
		pass.Dispatch(x, y, z)
	})
}

// End moves the bound textures to storage usage and records the pass.
func (p *computePassEncoder) End() {
	if p.ended {
		return
	}
	p.ended = true
	e := p.encoder
	if !e.usable() {
		return
	}

	var textures []gpucore.TextureID
	e.adapter.mu.RLock()
	for _, g := range p.groups {
		textures = append(textures, e.adapter.bindGroups[g].textures...)
	}
	e.adapter.mu.RUnlock()
	e.transition(gputypes.TextureUsageStorageBinding, textures...)
	if !e.usable() {
		return
	}

	pass := e.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: p.label})
	for _, op := range p.ops {
		op(pass)
	}
	pass.End()
}
