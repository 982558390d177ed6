package software

import (
	"errors"
	"fmt"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
	"github.com/ReinaS-64892/TTCE-Wgpu/internal/shader"
)

// command executes with the adapter lock held.
type command func(a *Adapter) error

var errEncoderFinished = errors.New("software: command encoder already finished")

type commandEncoder struct {
	adapter  *Adapter
	cmds     []command
	finished bool
}

func (e *commandEncoder) record(c command) {
	if !e.finished {
		e.cmds = append(e.cmds, c)
	}
}

// BeginComputePass implements gpucore.CommandEncoder.
func (e *commandEncoder) BeginComputePass(string) gpucore.ComputePassEncoder {
	return &computePass{encoder: e}
}

// CopyTextureToTexture implements gpucore.CommandEncoder.
func (e *commandEncoder) CopyTextureToTexture(src, dst gpucore.TextureID, width, height uint32) {
	e.record(func(a *Adapter) error {
		s, ok1 := a.textures[src]
		d, ok2 := a.textures[dst]
		if !ok1 || !ok2 {
			return fmt.Errorf("%w: copy %d -> %d", ErrNotFound, src, dst)
		}
		if s.format != d.format {
			return fmt.Errorf("%w: format %v to %v", ErrInvalidCopy, s.format, d.format)
		}
		if width > s.width || width > d.width || height > s.height || height > d.height {
			return fmt.Errorf("%w: %dx%d region exceeds %dx%d or %dx%d", ErrInvalidCopy,
				width, height, s.width, s.height, d.width, d.height)
		}
		bs := s.format.BlockSize()
		for y := uint32(0); y < height; y++ {
			copy(d.data[y*d.width*bs:y*d.width*bs+width*bs], s.data[y*s.width*bs:])
		}
		return nil
	})
}

// CopyTextureToBuffer implements gpucore.CommandEncoder.
func (e *commandEncoder) CopyTextureToBuffer(src gpucore.TextureID, dst gpucore.BufferID, width, height, bytesPerRow uint32) {
	e.record(func(a *Adapter) error {
		s, ok1 := a.textures[src]
		d, ok2 := a.buffers[dst]
		if !ok1 || !ok2 {
			return fmt.Errorf("%w: copy texture %d -> buffer %d", ErrNotFound, src, dst)
		}
		bs := s.format.BlockSize()
		row := width * bs
		if bytesPerRow%gpucore.CopyRowAlignment != 0 || bytesPerRow < row {
			return fmt.Errorf("%w: bytesPerRow %d for %d byte rows", ErrInvalidCopy, bytesPerRow, row)
		}
		if uint64(bytesPerRow)*uint64(height-1)+uint64(row) > uint64(len(d.data)) {
			return fmt.Errorf("%w: buffer of %d bytes too small", ErrInvalidCopy, len(d.data))
		}
		for y := uint32(0); y < height; y++ {
			copy(d.data[y*bytesPerRow:y*bytesPerRow+row], s.data[y*s.width*bs:])
		}
		return nil
	})
}

// CopyBufferToBuffer implements gpucore.CommandEncoder.
func (e *commandEncoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset, size uint64) {
	e.record(func(a *Adapter) error {
		s, ok1 := a.buffers[src]
		d, ok2 := a.buffers[dst]
		if !ok1 || !ok2 {
			return fmt.Errorf("%w: copy buffer %d -> %d", ErrNotFound, src, dst)
		}
		if srcOffset+size > uint64(len(s.data)) || dstOffset+size > uint64(len(d.data)) {
			return fmt.Errorf("%w: %d bytes out of range", ErrInvalidCopy, size)
		}
		copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
		return nil
	})
}

// Finish implements gpucore.CommandEncoder.
func (e *commandEncoder) Finish() (gpucore.CommandBufferID, error) {
	if e.finished {
		return gpucore.InvalidID, errEncoderFinished
	}
	e.finished = true
	id := gpucore.CommandBufferID(e.adapter.id())
	e.adapter.mu.Lock()
	e.adapter.commandBuffers[id] = e.cmds
	e.adapter.mu.Unlock()
	return id, nil
}

// Discard implements gpucore.CommandEncoder.
func (e *commandEncoder) Discard() {
	if e.finished {
		return
	}
	e.finished = true
	e.cmds = nil
}

type computePass struct {
	encoder   *commandEncoder
	pipeline  gpucore.ComputePipelineID
	bindGroup gpucore.BindGroupID
}

// SetPipeline implements gpucore.ComputePassEncoder.
func (p *computePass) SetPipeline(pipeline gpucore.ComputePipelineID) { p.pipeline = pipeline }

// SetBindGroup implements gpucore.ComputePassEncoder. Only group 0 exists.
func (p *computePass) SetBindGroup(_ uint32, group gpucore.BindGroupID) { p.bindGroup = group }

// Dispatch implements gpucore.ComputePassEncoder.
func (p *computePass) Dispatch(x, y, z uint32) {
	pipelineID, groupID := p.pipeline, p.bindGroup
	p.encoder.record(func(a *Adapter) error {
		pl, ok := a.computePipelines[pipelineID]
		if !ok {
			return fmt.Errorf("%w: pipeline %d", ErrNotFound, pipelineID)
		}
		inv, err := a.invocation(groupID)
		if err != nil {
			return err
		}
		a.dispatches.Add(1)
		a.run(pl, inv, [3]uint32{x, y, z})
		return nil
	})
}

// End implements gpucore.ComputePassEncoder.
func (p *computePass) End() {}

func (a *Adapter) invocation(group gpucore.BindGroupID) (*Invocation, error) {
	inv := &Invocation{
		textures: make(map[uint32]*texture),
		buffers:  make(map[uint32]*buffer),
	}
	if group == gpucore.InvalidID {
		return inv, nil
	}
	entries, ok := a.bindGroups[group]
	if !ok {
		return nil, fmt.Errorf("%w: bind group %d", ErrNotFound, group)
	}
	for _, e := range entries {
		if e.Buffer != gpucore.InvalidID {
			b, ok := a.buffers[e.Buffer]
			if !ok {
				return nil, fmt.Errorf("%w: buffer %d", ErrNotFound, e.Buffer)
			}
			inv.buffers[e.Binding] = b
			continue
		}
		tex, ok := a.textures[a.views[e.TextureView]]
		if !ok {
			return nil, fmt.Errorf("%w: texture behind view %d", ErrNotFound, e.TextureView)
		}
		inv.textures[e.Binding] = tex
	}
	return inv, nil
}

// run executes the dispatch on the adapter's pool. Kernels may only write
// texels and buffer elements owned by their own invocation.
func (a *Adapter) run(pl *pipeline, inv *Invocation, groups [3]uint32) {
	wg := pl.wg
	var work []func()
	for gz := uint32(0); gz < groups[2]; gz++ {
		for gy := uint32(0); gy < groups[1]; gy++ {
			work = append(work, func() {
				for z := gz * wg[2]; z < (gz+1)*wg[2]; z++ {
					for y := gy * wg[1]; y < (gy+1)*wg[1]; y++ {
						for x := uint32(0); x < groups[0]*wg[0]; x++ {
							pl.kernel(inv, [3]uint32{x, y, z})
						}
					}
				}
			})
		}
	}
	a.pool.ExecuteAll(work)
}

// workGroupOf reads the work-group size of entry from the module source
// after the engine's clamp, falling back to 1x1x1.
func workGroupOf(source, entry string) [3]uint32 {
	wg := [3]uint32{1, 1, 1}
	module, err := shader.Parse(source)
	if err != nil {
		return wg
	}
	shader.ClampWorkGroup(module)
	for _, ep := range module.EntryPoints {
		if ep.Name == entry {
			for i, n := range ep.Workgroup {
				if n > 0 {
					wg[i] = n
				}
			}
		}
	}
	return wg
}
