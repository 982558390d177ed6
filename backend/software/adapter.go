// Package software provides an in-memory gpucore.GPUAdapter.
//
// Textures and buffers live in host memory and submitted commands execute
// on the CPU, one work group row per pool item. Shaders cannot be interpreted in general: pipelines whose
// module is a texel copy (one read-only and one write-only storage image)
// run a built-in kernel, and other pipelines run the kernel registered for
// their label with RegisterKernel, or nothing.
package software

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
	"github.com/ReinaS-64892/TTCE-Wgpu/internal/parallel"
)

var (
	// ErrNotFound is returned when an ID does not name a live resource.
	ErrNotFound = errors.New("software: resource not found")

	// ErrDeviceLost is reported by map requests after SetLost(true).
	ErrDeviceLost = errors.New("software: device lost")

	// ErrInvalidCopy is returned from Submit for copies the GPU would reject.
	ErrInvalidCopy = errors.New("software: invalid copy")

	// ErrNotMappable is reported for map requests on buffers without
	// BufferUsageMapRead.
	ErrNotMappable = errors.New("software: buffer not created with MapRead usage")
)

type buffer struct {
	usage gpucore.BufferUsage
	data  []byte
}

type texture struct {
	width, height uint32
	format        gpucore.TextureFormat
	data          []byte
}

type pipeline struct {
	label  string
	kernel Kernel
	wg     [3]uint32
}

type pendingMap struct {
	id       gpucore.BufferID
	offset   uint64
	size     uint64
	callback func([]byte, error)
}

// Adapter implements gpucore.GPUAdapter in host memory.
//
// Thread Safety: Adapter is safe for concurrent use from multiple goroutines.
type Adapter struct {
	mu     sync.RWMutex
	logger atomic.Pointer[slog.Logger]

	// ID generation
	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*buffer
	textures         map[gpucore.TextureID]*texture
	views            map[gpucore.TextureViewID]gpucore.TextureID
	shaderModules    map[gpucore.ShaderModuleID]string
	bindGroupLayouts map[gpucore.BindGroupLayoutID][]gpucore.BindGroupLayoutEntry
	pipelineLayouts  map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	computePipelines map[gpucore.ComputePipelineID]*pipeline
	bindGroups       map[gpucore.BindGroupID][]gpucore.BindGroupEntry
	commandBuffers   map[gpucore.CommandBufferID][]command

	kernels map[string]Kernel
	pool    *parallel.WorkerPool
	pending []pendingMap
	lost    bool

	submissions atomic.Int64
	dispatches  atomic.Int64
}

// New creates an empty software device.
func New() *Adapter {
	a := &Adapter{
		buffers:          make(map[gpucore.BufferID]*buffer),
		textures:         make(map[gpucore.TextureID]*texture),
		views:            make(map[gpucore.TextureViewID]gpucore.TextureID),
		shaderModules:    make(map[gpucore.ShaderModuleID]string),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID][]gpucore.BindGroupLayoutEntry),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		computePipelines: make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroups:       make(map[gpucore.BindGroupID][]gpucore.BindGroupEntry),
		commandBuffers:   make(map[gpucore.CommandBufferID][]command),
		kernels:          make(map[string]Kernel),
		pool:             parallel.NewWorkerPool(0),
	}
	a.logger.Store(slog.New(slog.DiscardHandler))

	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)
	return a
}

// SetLogger sets the logger used for diagnostics. Nil disables logging.
func (a *Adapter) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	a.logger.Store(l)
}

// Name identifies the adapter in logs.
func (a *Adapter) Name() string { return "software" }

// RegisterKernel sets the kernel run by pipelines created with label.
// It must be called before the pipeline is created.
func (a *Adapter) RegisterKernel(label string, k Kernel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kernels[label] = k
}

// SetLost simulates device loss: subsequent map requests fail.
func (a *Adapter) SetLost(lost bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lost = lost
}

// Submissions returns how many Submit calls have been made.
func (a *Adapter) Submissions() int { return int(a.submissions.Load()) }

// Dispatches returns how many dispatches have executed.
func (a *Adapter) Dispatches() int { return int(a.dispatches.Load()) }

// LiveResources counts buffers, textures, views and bind groups not yet
// destroyed.
func (a *Adapter) LiveResources() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buffers) + len(a.textures) + len(a.views) + len(a.bindGroups)
}

func (a *Adapter) id() uint64 { return a.nextID.Add(1) - 1 }

// === Shader Compilation ===

// CreateShaderModule implements gpucore.GPUAdapter. The WGSL source is kept
// for kernel detection.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	id := gpucore.ShaderModuleID(a.id())
	a.mu.Lock()
	a.shaderModules[id] = desc.Source
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	delete(a.shaderModules, id)
	a.mu.Unlock()
}

// === Buffer Management ===

// CreateBuffer implements gpucore.GPUAdapter.
func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if uint64(len(desc.Contents)) > desc.Size {
		return gpucore.InvalidID, fmt.Errorf("software: %d bytes of contents exceed buffer size %d", len(desc.Contents), desc.Size)
	}
	b := &buffer{usage: desc.Usage, data: make([]byte, desc.Size)}
	copy(b.data, desc.Contents)

	id := gpucore.BufferID(a.id())
	a.mu.Lock()
	a.buffers[id] = b
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	delete(a.buffers, id)
	a.mu.Unlock()
}

// MapReadAsync implements gpucore.GPUAdapter.
func (a *Adapter) MapReadAsync(id gpucore.BufferID, offset, size uint64, callback func([]byte, error)) {
	a.mu.Lock()
	a.pending = append(a.pending, pendingMap{id: id, offset: offset, size: size, callback: callback})
	a.mu.Unlock()
}

// === Texture Management ===

// CreateTexture implements gpucore.GPUAdapter.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	bs := desc.Format.BlockSize()
	if bs == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: unsupported texture format %v", desc.Format)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: invalid texture size %dx%d", desc.Width, desc.Height)
	}
	t := &texture{
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		data:   make([]byte, desc.Width*desc.Height*bs),
	}
	id := gpucore.TextureID(a.id())
	a.mu.Lock()
	a.textures[id] = t
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture implements gpucore.GPUAdapter.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	delete(a.textures, id)
	a.mu.Unlock()
}

// WriteTexture implements gpucore.GPUAdapter.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte, bytesPerRow uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrNotFound, id)
	}
	row := t.width * t.format.BlockSize()
	if bytesPerRow < row || uint64(len(data)) < uint64(bytesPerRow)*uint64(t.height-1)+uint64(row) {
		return fmt.Errorf("software: %d bytes with row pitch %d do not cover a %dx%d %v texture",
			len(data), bytesPerRow, t.width, t.height, t.format)
	}
	for y := uint32(0); y < t.height; y++ {
		copy(t.data[y*row:(y+1)*row], data[y*bytesPerRow:])
	}
	return nil
}

// CreateTextureView implements gpucore.GPUAdapter.
func (a *Adapter) CreateTextureView(tex gpucore.TextureID) (gpucore.TextureViewID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.textures[tex]; !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %d", ErrNotFound, tex)
	}
	id := gpucore.TextureViewID(a.id())
	a.views[id] = tex
	return id, nil
}

// DestroyTextureView implements gpucore.GPUAdapter.
func (a *Adapter) DestroyTextureView(id gpucore.TextureViewID) {
	a.mu.Lock()
	delete(a.views, id)
	a.mu.Unlock()
}

// === Pipeline Management ===

// CreateBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	id := gpucore.BindGroupLayoutID(a.id())
	a.mu.Lock()
	a.bindGroupLayouts[id] = append([]gpucore.BindGroupLayoutEntry(nil), desc.Entries...)
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()
}

// CreatePipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range layouts {
		if _, ok := a.bindGroupLayouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrNotFound, l)
		}
	}
	id := gpucore.PipelineLayoutID(a.id())
	a.pipelineLayouts[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
}

// CreateComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.RLock()
	source, ok := a.shaderModules[desc.ShaderModule]
	registered, hasKernel := a.kernels[desc.Label]
	a.mu.RUnlock()
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", ErrNotFound, desc.ShaderModule)
	}

	logger := a.logger.Load()
	p := &pipeline{label: desc.Label}
	switch {
	case hasKernel:
		p.kernel = registered
	default:
		if k, isCopy := detectKernel(source, logger); isCopy {
			p.kernel = k
		} else {
			logger.Debug("software: no kernel for pipeline, dispatches are no-ops", "label", desc.Label)
			p.kernel = nopKernel
		}
	}
	p.wg = workGroupOf(source, desc.EntryPoint)

	id := gpucore.ComputePipelineID(a.id())
	a.mu.Lock()
	a.computePipelines[id] = p
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	delete(a.computePipelines, id)
	a.mu.Unlock()
}

// CreateBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	layout, ok := a.bindGroupLayouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrNotFound, desc.Layout)
	}
	if len(desc.Entries) != len(layout) {
		return gpucore.InvalidID, fmt.Errorf("software: bind group has %d entries, layout expects %d",
			len(desc.Entries), len(layout))
	}
	for _, e := range desc.Entries {
		if e.Buffer != gpucore.InvalidID {
			if _, ok := a.buffers[e.Buffer]; !ok {
				return gpucore.InvalidID, fmt.Errorf("%w: buffer %d", ErrNotFound, e.Buffer)
			}
			continue
		}
		if _, ok := a.views[e.TextureView]; !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: texture view %d", ErrNotFound, e.TextureView)
		}
	}
	id := gpucore.BindGroupID(a.id())
	a.bindGroups[id] = append([]gpucore.BindGroupEntry(nil), desc.Entries...)
	return id, nil
}

// DestroyBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	delete(a.bindGroups, id)
	a.mu.Unlock()
}

// === Command Recording and Execution ===

// CreateCommandEncoder implements gpucore.GPUAdapter.
func (a *Adapter) CreateCommandEncoder(string) (gpucore.CommandEncoder, error) {
	return &commandEncoder{adapter: a}, nil
}

// Submit executes the command buffers in order on the calling goroutine.
func (a *Adapter) Submit(buffers []gpucore.CommandBufferID) error {
	a.submissions.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range buffers {
		cmds, ok := a.commandBuffers[id]
		if !ok {
			return fmt.Errorf("%w: command buffer %d", ErrNotFound, id)
		}
		delete(a.commandBuffers, id)
		for _, cmd := range cmds {
			if err := cmd(a); err != nil {
				return err
			}
		}
	}
	return nil
}

// Poll implements gpucore.GPUAdapter. Work runs at Submit, so every
// pending map resolves on the first Poll.
func (a *Adapter) Poll(bool) (bool, error) {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	results := make([]mapResult, 0, len(pending))
	for _, p := range pending {
		results = append(results, a.resolveMap(p))
	}
	a.mu.Unlock()

	// Callbacks run without the lock so they may call back into the adapter.
	for _, r := range results {
		r.cb(r.data, r.err)
	}
	return true, nil
}

type mapResult struct {
	cb   func([]byte, error)
	data []byte
	err  error
}

func (a *Adapter) resolveMap(p pendingMap) mapResult {
	r := mapResult{cb: p.callback}
	if a.lost {
		r.err = ErrDeviceLost
		return r
	}
	b, ok := a.buffers[p.id]
	switch {
	case !ok:
		r.err = fmt.Errorf("%w: buffer %d", ErrNotFound, p.id)
	case b.usage&gpucore.BufferUsageMapRead == 0:
		r.err = ErrNotMappable
	case p.offset+p.size > uint64(len(b.data)):
		r.err = fmt.Errorf("software: map range %d+%d exceeds buffer size %d", p.offset, p.size, len(b.data))
	default:
		r.data = append([]byte(nil), b.data[p.offset:p.offset+p.size]...)
	}
	return r
}

// Destroy releases everything the adapter still holds.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.buffers)
	clear(a.textures)
	clear(a.views)
	clear(a.shaderModules)
	clear(a.bindGroupLayouts)
	clear(a.pipelineLayouts)
	clear(a.computePipelines)
	clear(a.bindGroups)
	clear(a.commandBuffers)
	a.pending = nil
	a.pool.Close()
}
