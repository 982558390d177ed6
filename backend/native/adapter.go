//go:build !nogpu

// Package native provides a gpucore.GPUAdapter over gogpu/wgpu/hal devices.
package native

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// DefaultTimeout bounds a blocking Poll.
const DefaultTimeout = 5 * time.Second

type textureEntry struct {
	texture       hal.Texture
	width, height uint32
	format        gpucore.TextureFormat

	// usage is the state the last recorded command left the texture in.
	usage gputypes.TextureUsage
}

type viewEntry struct {
	view    hal.TextureView
	texture gpucore.TextureID
}

type bindGroupEntry struct {
	group    hal.BindGroup
	textures []gpucore.TextureID
}

// pendingMap is a MapReadAsync request waiting for its fence value.
type pendingMap struct {
	id       gpucore.BufferID
	offset   uint64
	size     uint64
	value    uint64
	callback func([]byte, error)
}

// inFlight holds submitted command buffers until the fence passes value.
type inFlight struct {
	value   uint64
	buffers []hal.CommandBuffer
}

// HALAdapter implements gpucore.GPUAdapter using gogpu/wgpu/hal directly.
// It provides a bridge between the gpucore abstraction and the HAL layer.
//
// Completion is tracked with a single fence whose value is incremented by
// every Submit.
//
// Thread Safety: HALAdapter is safe for concurrent use from multiple goroutines.
// All resource operations are protected by a mutex.
type HALAdapter struct {
	mu       sync.RWMutex
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	owned    bool
	name     string
	timeout  time.Duration
	logger   atomic.Pointer[slog.Logger]

	// ID generation
	nextID atomic.Uint64

	fence     hal.Fence
	submitted uint64
	inFlight  []inFlight
	pending   []pendingMap

	// Resource tracking maps gpucore IDs to hal resources
	buffers          map[gpucore.BufferID]hal.Buffer
	textures         map[gpucore.TextureID]*textureEntry
	views            map[gpucore.TextureViewID]viewEntry
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	bindGroups       map[gpucore.BindGroupID]bindGroupEntry
	commandBuffers   map[gpucore.CommandBufferID]hal.CommandBuffer

	destroyed bool
}

// NewHALAdapter creates a new HALAdapter wrapping the given device and queue.
// The caller keeps ownership of the device: Destroy releases the adapter's
// resources but leaves the device open.
func NewHALAdapter(device hal.Device, queue hal.Queue) (*HALAdapter, error) {
	if device == nil || queue == nil {
		return nil, ErrNoGPU
	}
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("native: create fence: %w", err)
	}

	adapter := &HALAdapter{
		device:           device,
		queue:            queue,
		timeout:          DefaultTimeout,
		fence:            fence,
		buffers:          make(map[gpucore.BufferID]hal.Buffer),
		textures:         make(map[gpucore.TextureID]*textureEntry),
		views:            make(map[gpucore.TextureViewID]viewEntry),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		bindGroups:       make(map[gpucore.BindGroupID]bindGroupEntry),
		commandBuffers:   make(map[gpucore.CommandBufferID]hal.CommandBuffer),
	}
	adapter.logger.Store(slog.New(slog.DiscardHandler))

	// Start ID generation at 1 (0 is invalid)
	adapter.nextID.Store(1)

	return adapter, nil
}

// newID generates a unique resource ID.
func (a *HALAdapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// SetLogger sets the logger used for diagnostics. Nil disables logging.
func (a *HALAdapter) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	a.logger.Store(l)
}

// Name returns the name of the physical adapter, if known.
func (a *HALAdapter) Name() string { return a.name }

// === Shader Compilation ===

// CreateShaderModule creates a shader module from SPIR-V bytecode.
func (a *HALAdapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if len(desc.SPIRV) == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: %s: empty SPIR-V bytecode", desc.Label)
	}

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: desc.Label,
		Source: hal.ShaderSource{
			SPIRV: desc.SPIRV,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create shader module %s: %w", desc.Label, err)
	}

	id := gpucore.ShaderModuleID(a.newID())

	a.mu.Lock()
	a.shaderModules[id] = module
	a.mu.Unlock()

	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *HALAdapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	module, ok := a.shaderModules[id]
	if ok {
		delete(a.shaderModules, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyShaderModule(module)
	}
}

// === Buffer Management ===

// CreateBuffer creates a GPU buffer. Buffers created with
// BufferUsageCopyDst are zero-filled after desc.Contents.
func (a *HALAdapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: buffer %s: size must be greater than 0", desc.Label)
	}
	if uint64(len(desc.Contents)) > desc.Size {
		return gpucore.InvalidID, fmt.Errorf("native: buffer %s: %d content bytes exceed size %d",
			desc.Label, len(desc.Contents), desc.Size)
	}

	buffer, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: convertBufferUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer %s: %w", desc.Label, err)
	}

	if desc.Usage&gpucore.BufferUsageCopyDst != 0 {
		init := make([]byte, desc.Size)
		copy(init, desc.Contents)
		a.queue.WriteBuffer(buffer, 0, init)
	}

	id := gpucore.BufferID(a.newID())

	a.mu.Lock()
	a.buffers[id] = buffer
	a.mu.Unlock()

	return id, nil
}

// DestroyBuffer releases a GPU buffer.
func (a *HALAdapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	buffer, ok := a.buffers[id]
	if ok {
		delete(a.buffers, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBuffer(buffer)
	}
}

// MapReadAsync queues a read of the buffer. It resolves on the first Poll
// that sees every submission made so far complete.
func (a *HALAdapter) MapReadAsync(id gpucore.BufferID, offset, size uint64, callback func([]byte, error)) {
	a.mu.Lock()
	a.pending = append(a.pending, pendingMap{
		id:       id,
		offset:   offset,
		size:     size,
		value:    a.submitted,
		callback: callback,
	})
	a.mu.Unlock()
}

// === Texture Management ===

// CreateTexture creates a 2D GPU texture.
func (a *HALAdapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	format, ok := convertTextureFormat(desc.Format)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: %v", ErrUnsupportedFormat, desc.Format)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, desc.Width, desc.Height)
	}

	texture, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         convertTextureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture %s: %w", desc.Label, err)
	}

	id := gpucore.TextureID(a.newID())

	a.mu.Lock()
	a.textures[id] = &textureEntry{
		texture: texture,
		width:   desc.Width,
		height:  desc.Height,
		format:  desc.Format,
	}
	a.mu.Unlock()

	return id, nil
}

// DestroyTexture releases a GPU texture.
func (a *HALAdapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	entry, ok := a.textures[id]
	if ok {
		delete(a.textures, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyTexture(entry.texture)
	}
}

// WriteTexture writes tightly packed rows to the whole texture.
func (a *HALAdapter) WriteTexture(id gpucore.TextureID, data []byte, bytesPerRow uint32) error {
	a.mu.Lock()
	entry, ok := a.textures[id]
	if ok {
		entry.usage = gputypes.TextureUsageCopyDst
	}
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: texture %d", ErrNotFound, id)
	}
	if want := uint64(bytesPerRow) * uint64(entry.height); uint64(len(data)) < want {
		return fmt.Errorf("native: texture %d: %d bytes, want %d", id, len(data), want)
	}

	a.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  entry.texture,
			MipLevel: 0,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: entry.height,
		},
		&hal.Extent3D{Width: entry.width, Height: entry.height, DepthOrArrayLayers: 1},
	)
	return nil
}

// CreateTextureView creates a full 2D view of a texture.
func (a *HALAdapter) CreateTextureView(texture gpucore.TextureID) (gpucore.TextureViewID, error) {
	a.mu.RLock()
	entry, ok := a.textures[texture]
	a.mu.RUnlock()

	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %d", ErrNotFound, texture)
	}
	format, _ := convertTextureFormat(entry.format)

	view, err := a.device.CreateTextureView(entry.texture, &hal.TextureViewDescriptor{
		Label:         fmt.Sprintf("texture_%d_view", texture),
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create view of texture %d: %w", texture, err)
	}

	id := gpucore.TextureViewID(a.newID())

	a.mu.Lock()
	a.views[id] = viewEntry{view: view, texture: texture}
	a.mu.Unlock()

	return id, nil
}

// DestroyTextureView releases a texture view.
func (a *HALAdapter) DestroyTextureView(id gpucore.TextureViewID) {
	a.mu.Lock()
	entry, ok := a.views[id]
	if ok {
		delete(a.views, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyTextureView(entry.view)
	}
}

// === Pipeline Management ===

// CreateBindGroupLayout creates a bind group layout.
func (a *HALAdapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		entry, err := convertBindGroupLayoutEntry(e)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("native: layout %s: %w", desc.Label, err)
		}
		entries = append(entries, entry)
	}

	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group layout %s: %w", desc.Label, err)
	}

	id := gpucore.BindGroupLayoutID(a.newID())

	a.mu.Lock()
	a.bindGroupLayouts[id] = layout
	a.mu.Unlock()

	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *HALAdapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	layout, ok := a.bindGroupLayouts[id]
	if ok {
		delete(a.bindGroupLayouts, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout creates a pipeline layout from bind group layouts.
func (a *HALAdapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.RLock()
	halLayouts := make([]hal.BindGroupLayout, 0, len(layouts))
	for _, id := range layouts {
		layout, ok := a.bindGroupLayouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrNotFound, id)
		}
		halLayouts = append(halLayouts, layout)
	}
	a.mu.RUnlock()

	pipelineLayout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "pipeline_layout",
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create pipeline layout: %w", err)
	}

	id := gpucore.PipelineLayoutID(a.newID())

	a.mu.Lock()
	a.pipelineLayouts[id] = pipelineLayout
	a.mu.Unlock()

	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *HALAdapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	layout, ok := a.pipelineLayouts[id]
	if ok {
		delete(a.pipelineLayouts, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyPipelineLayout(layout)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *HALAdapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.RLock()
	layout, layoutOK := a.pipelineLayouts[desc.Layout]
	module, moduleOK := a.shaderModules[desc.ShaderModule]
	a.mu.RUnlock()

	if !layoutOK {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", ErrNotFound, desc.Layout)
	}
	if !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", ErrNotFound, desc.ShaderModule)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create compute pipeline %s: %w", desc.Label, err)
	}

	id := gpucore.ComputePipelineID(a.newID())

	a.mu.Lock()
	a.computePipelines[id] = pipeline
	a.mu.Unlock()

	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *HALAdapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	pipeline, ok := a.computePipelines[id]
	if ok {
		delete(a.computePipelines, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyComputePipeline(pipeline)
	}
}

// CreateBindGroup creates a bind group.
func (a *HALAdapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	layout, ok := a.bindGroupLayouts[desc.Layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrNotFound, desc.Layout)
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Entries))
	var textures []gpucore.TextureID
	for _, e := range desc.Entries {
		entry, tex, err := a.convertBindGroupEntry(e)
		if err != nil {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("native: bind group %s: %w", desc.Label, err)
		}
		entries = append(entries, entry)
		if tex != gpucore.InvalidID {
			textures = append(textures, tex)
		}
	}
	a.mu.RUnlock()

	group, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group %s: %w", desc.Label, err)
	}

	id := gpucore.BindGroupID(a.newID())

	a.mu.Lock()
	a.bindGroups[id] = bindGroupEntry{group: group, textures: textures}
	a.mu.Unlock()

	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *HALAdapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	entry, ok := a.bindGroups[id]
	if ok {
		delete(a.bindGroups, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBindGroup(entry.group)
	}
}

// === Command Recording and Execution ===

// CreateCommandEncoder begins recording a new command buffer.
func (a *HALAdapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return &commandEncoder{adapter: a, encoder: encoder, label: label}, nil
}

// Submit submits command buffers and signals the fence with the next value.
func (a *HALAdapter) Submit(buffers []gpucore.CommandBufferID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return ErrNotInitialized
	}

	cmds := make([]hal.CommandBuffer, 0, len(buffers))
	for _, id := range buffers {
		cmd, ok := a.commandBuffers[id]
		if !ok {
			return fmt.Errorf("%w: command buffer %d", ErrNotFound, id)
		}
		delete(a.commandBuffers, id)
		cmds = append(cmds, cmd)
	}

	value := a.submitted + 1
	if err := a.queue.Submit(cmds, a.fence, value); err != nil {
		for _, cmd := range cmds {
			a.device.FreeCommandBuffer(cmd)
		}
		return fmt.Errorf("native: submit: %w", err)
	}
	a.submitted = value
	if len(cmds) > 0 {
		a.inFlight = append(a.inFlight, inFlight{value: value, buffers: cmds})
	}
	return nil
}

// Poll frees finished command buffers and resolves map requests whose
// submissions have completed. With wait set it blocks, up to the adapter
// timeout, until the queue is idle.
func (a *HALAdapter) Poll(wait bool) (bool, error) {
	a.mu.Lock()
	target := a.submitted
	destroyed := a.destroyed
	a.mu.Unlock()
	if destroyed {
		return false, ErrNotInitialized
	}

	timeout := time.Duration(0)
	if wait {
		timeout = a.timeout
	}
	idle, err := a.reached(target, timeout)
	if err != nil {
		return false, fmt.Errorf("native: wait for GPU: %w", err)
	}
	if wait && !idle {
		return false, fmt.Errorf("%w after %v", ErrTimeout, a.timeout)
	}

	completed := target
	if !idle {
		completed = a.completedValue(target)
	}

	a.mu.Lock()
	var free []hal.CommandBuffer
	kept := a.inFlight[:0]
	for _, f := range a.inFlight {
		if f.value <= completed {
			free = append(free, f.buffers...)
			continue
		}
		kept = append(kept, f)
	}
	a.inFlight = kept

	var ready []pendingMap
	waiting := a.pending[:0]
	for _, p := range a.pending {
		if p.value <= completed {
			ready = append(ready, p)
			continue
		}
		waiting = append(waiting, p)
	}
	a.pending = waiting

	results := make([]mapResult, 0, len(ready))
	for _, p := range ready {
		results = append(results, a.resolveMap(p))
	}
	a.mu.Unlock()

	for _, cmd := range free {
		a.device.FreeCommandBuffer(cmd)
	}
	// Callbacks run without the lock so they may call back into the adapter.
	for _, r := range results {
		r.cb(r.data, r.err)
	}
	return idle, nil
}

// reached reports whether the fence has passed value.
func (a *HALAdapter) reached(value uint64, timeout time.Duration) (bool, error) {
	if value == 0 {
		return true, nil
	}
	return a.device.Wait(a.fence, value, timeout)
}

// completedValue finds the highest fence value at or below target that has
// been reached, probing in-flight and map values without blocking.
func (a *HALAdapter) completedValue(target uint64) uint64 {
	a.mu.RLock()
	values := make([]uint64, 0, len(a.inFlight)+len(a.pending))
	for _, f := range a.inFlight {
		values = append(values, f.value)
	}
	for _, p := range a.pending {
		values = append(values, p.value)
	}
	a.mu.RUnlock()

	var completed uint64
	for _, v := range values {
		if v <= completed || v > target {
			continue
		}
		if ok, err := a.reached(v, 0); err == nil && ok {
			completed = v
		}
	}
	return completed
}

type mapResult struct {
	cb   func([]byte, error)
	data []byte
	err  error
}

// resolveMap reads a buffer whose writes have completed.
// Must be called with mu held.
func (a *HALAdapter) resolveMap(p pendingMap) mapResult {
	r := mapResult{cb: p.callback}
	buffer, ok := a.buffers[p.id]
	if !ok {
		r.err = fmt.Errorf("%w: buffer %d", ErrNotFound, p.id)
		return r
	}
	data := make([]byte, p.size)
	if err := a.queue.ReadBuffer(buffer, p.offset, data); err != nil {
		r.err = fmt.Errorf("native: read buffer %d: %w", p.id, err)
		return r
	}
	r.data = data
	return r
}

// Destroy waits for outstanding work and releases everything the adapter
// still holds. The device itself is destroyed only when the adapter opened
// it.
func (a *HALAdapter) Destroy() {
	a.mu.RLock()
	destroyed := a.destroyed
	a.mu.RUnlock()
	if destroyed {
		return
	}
	if _, err := a.Poll(true); err != nil {
		a.logger.Load().Warn("native: destroy before GPU idle", "error", err)
	}

	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true

	for _, f := range a.inFlight {
		for _, cmd := range f.buffers {
			a.device.FreeCommandBuffer(cmd)
		}
	}
	a.inFlight = nil
	for id, cmd := range a.commandBuffers {
		a.device.FreeCommandBuffer(cmd)
		delete(a.commandBuffers, id)
	}
	for id, g := range a.bindGroups {
		a.device.DestroyBindGroup(g.group)
		delete(a.bindGroups, id)
	}
	for id, p := range a.computePipelines {
		a.device.DestroyComputePipeline(p)
		delete(a.computePipelines, id)
	}
	for id, l := range a.pipelineLayouts {
		a.device.DestroyPipelineLayout(l)
		delete(a.pipelineLayouts, id)
	}
	for id, l := range a.bindGroupLayouts {
		a.device.DestroyBindGroupLayout(l)
		delete(a.bindGroupLayouts, id)
	}
	for id, m := range a.shaderModules {
		a.device.DestroyShaderModule(m)
		delete(a.shaderModules, id)
	}
	for id, v := range a.views {
		a.device.DestroyTextureView(v.view)
		delete(a.views, id)
	}
	for id, t := range a.textures {
		a.device.DestroyTexture(t.texture)
		delete(a.textures, id)
	}
	for id, b := range a.buffers {
		a.device.DestroyBuffer(b)
		delete(a.buffers, id)
	}
	a.device.DestroyFence(a.fence)

	pending := a.pending
	a.pending = nil

	if a.owned {
		a.device.Destroy()
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.mu.Unlock()

	for _, p := range pending {
		p.callback(nil, ErrNotInitialized)
	}
}

// === Type Conversion Helpers ===

// convertBufferUsage converts gpucore.BufferUsage to gputypes.BufferUsage.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage

	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= gputypes.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageMapWrite != 0 {
		result |= gputypes.BufferUsageMapWrite
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}

	return result
}

// convertTextureUsage converts gpucore.TextureUsage to gputypes.TextureUsage.
func convertTextureUsage(usage gpucore.TextureUsage) gputypes.TextureUsage {
	var result gputypes.TextureUsage

	if usage&gpucore.TextureUsageCopySrc != 0 {
		result |= gputypes.TextureUsageCopySrc
	}
	if usage&gpucore.TextureUsageCopyDst != 0 {
		result |= gputypes.TextureUsageCopyDst
	}
	if usage&gpucore.TextureUsageTextureBinding != 0 {
		result |= gputypes.TextureUsageTextureBinding
	}
	if usage&gpucore.TextureUsageStorageBinding != 0 {
		result |= gputypes.TextureUsageStorageBinding
	}
	if usage&gpucore.TextureUsageRenderAttachment != 0 {
		result |= gputypes.TextureUsageRenderAttachment
	}

	return result
}

// convertTextureFormat converts gpucore.TextureFormat to gputypes.TextureFormat.
func convertTextureFormat(format gpucore.TextureFormat) (gputypes.TextureFormat, bool) {
	switch format {
	case gpucore.TextureFormatR8Unorm:
		return gputypes.TextureFormatR8Unorm, true
	case gpucore.TextureFormatRG8Unorm:
		return gputypes.TextureFormatRG8Unorm, true
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, true
	case gpucore.TextureFormatR16Unorm:
		return gputypes.TextureFormatR16Unorm, true
	case gpucore.TextureFormatRG16Unorm:
		return gputypes.TextureFormatRG16Unorm, true
	case gpucore.TextureFormatRGBA16Unorm:
		return gputypes.TextureFormatRGBA16Unorm, true
	case gpucore.TextureFormatR16Float:
		return gputypes.TextureFormatR16Float, true
	case gpucore.TextureFormatRG16Float:
		return gputypes.TextureFormatRG16Float, true
	case gpucore.TextureFormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float, true
	case gpucore.TextureFormatR32Float:
		return gputypes.TextureFormatR32Float, true
	case gpucore.TextureFormatRG32Float:
		return gputypes.TextureFormatRG32Float, true
	case gpucore.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float, true
	default:
		return gputypes.TextureFormatUndefined, false
	}
}

// convertStorageAccess converts gpucore.StorageAccess to gputypes.StorageTextureAccess.
func convertStorageAccess(access gpucore.StorageAccess) gputypes.StorageTextureAccess {
	switch access {
	case gpucore.StorageAccessReadOnly:
		return gputypes.StorageTextureAccessReadOnly
	case gpucore.StorageAccessWriteOnly:
		return gputypes.StorageTextureAccessWriteOnly
	default:
		return gputypes.StorageTextureAccessReadWrite
	}
}

// convertBindGroupLayoutEntry converts gpucore.BindGroupLayoutEntry to gputypes.BindGroupLayoutEntry.
func convertBindGroupLayoutEntry(entry gpucore.BindGroupLayoutEntry) (gputypes.BindGroupLayoutEntry, error) {
	result := gputypes.BindGroupLayoutEntry{
		Binding:    entry.Binding,
		Visibility: gputypes.ShaderStageCompute,
	}

	switch entry.Type {
	case gpucore.BindingTypeUniformBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeUniform,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeStorageBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeReadOnlyStorage,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeSampledTexture:
		result.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpucore.BindingTypeSampler:
		result.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case gpucore.BindingTypeStorageTexture:
		format, ok := convertTextureFormat(entry.StorageFormat)
		if !ok {
			return result, fmt.Errorf("%w: storage texture at binding %d: %v",
				ErrUnsupportedFormat, entry.Binding, entry.StorageFormat)
		}
		result.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        convertStorageAccess(entry.Access),
			Format:        format,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	default:
		return result, fmt.Errorf("native: binding %d: unknown binding type %d", entry.Binding, entry.Type)
	}

	return result, nil
}

// convertBindGroupEntry converts gpucore.BindGroupEntry to gputypes.BindGroupEntry.
// It also returns the texture behind a view entry.
// Must be called with mu.RLock held.
func (a *HALAdapter) convertBindGroupEntry(entry gpucore.BindGroupEntry) (gputypes.BindGroupEntry, gpucore.TextureID, error) {
	result := gputypes.BindGroupEntry{
		Binding: entry.Binding,
	}

	switch {
	case entry.Buffer != gpucore.InvalidID:
		buffer, ok := a.buffers[entry.Buffer]
		if !ok {
			return result, gpucore.InvalidID, fmt.Errorf("%w: buffer %d", ErrNotFound, entry.Buffer)
		}
		result.Resource = gputypes.BufferBinding{
			Buffer: buffer.NativeHandle(),
			Offset: entry.Offset,
			Size:   entry.Size,
		}
		return result, gpucore.InvalidID, nil
	case entry.TextureView != gpucore.InvalidID:
		view, ok := a.views[entry.TextureView]
		if !ok {
			return result, gpucore.InvalidID, fmt.Errorf("%w: texture view %d", ErrNotFound, entry.TextureView)
		}
		result.Resource = gputypes.TextureViewBinding{
			TextureView: view.view.NativeHandle(),
		}
		return result, view.texture, nil
	default:
		return result, gpucore.InvalidID, fmt.Errorf("native: binding %d: no resource", entry.Binding)
	}
}
