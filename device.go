package ttce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
	"github.com/ReinaS-64892/TTCE-Wgpu/toolchain"
)

// Device is the root owner of an engine session: the GPU adapter, the
// shader registry, the converter table and the default pixel format.
//
// A Device is safe for concurrent use. Contexts, textures, buffers and
// handlers created from it must be released before Close.
type Device struct {
	gpu              gpucore.GPUAdapter
	logger           *slog.Logger
	compiler         toolchain.Compiler
	wgsl             *toolchain.WGSL
	backlogThreshold int

	mu            sync.RWMutex
	shaders       []*CompiledShader
	converters    map[converterKey]ShaderID
	defaultFormat TextureFormat
	closed        bool
}

// NewDevice creates a device over gpu and registers the format converter
// network. The logger from WithLogger is passed on to gpu when it accepts one.
func NewDevice(gpu gpucore.GPUAdapter, opts ...DeviceOption) (*Device, error) {
	if gpu == nil {
		return nil, fmt.Errorf("ttce: nil GPU adapter")
	}
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if !o.defaultFormat.Valid() {
		return nil, fmt.Errorf("%w: default format %v", ErrInvalidFormat, o.defaultFormat)
	}
	if o.compiler == nil {
		o.compiler = toolchain.NewDXC(o.includeDirs...)
	}
	if o.compileCache > 0 {
		o.compiler = toolchain.NewCached(o.compiler, o.compileCache)
	}

	d := &Device{
		gpu:              gpu,
		logger:           o.logger,
		compiler:         o.compiler,
		wgsl:             &toolchain.WGSL{Include: toolchain.FileIncluder(o.includeDirs...)},
		backlogThreshold: o.backlogThreshold,
		converters:       make(map[converterKey]ShaderID),
		defaultFormat:    o.defaultFormat,
	}
	propagateLogger(gpu, d.logger)

	if err := d.registerConverters(context.Background()); err != nil {
		d.releaseShaders()
		return nil, err
	}
	d.logger.Info("ttce: device ready",
		"defaultFormat", d.defaultFormat, "converters", len(d.converters),
		"backlogThreshold", d.backlogThreshold)
	return d, nil
}

// Logger returns the device logger.
func (d *Device) Logger() *slog.Logger { return d.logger }

// GPU returns the adapter the device was created over.
func (d *Device) GPU() gpucore.GPUAdapter { return d.gpu }

// DefaultFormat returns the format used for textures allocated without an
// explicit format.
func (d *Device) DefaultFormat() TextureFormat {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.defaultFormat
}

// SetDefaultFormat changes the default format. Shaders registered from HLSL
// afterwards have their rgba32float storage images rewritten to it; shaders
// registered earlier keep the format they were built with.
func (d *Device) SetDefaultFormat(f TextureFormat) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, f)
	}
	d.mu.Lock()
	d.defaultFormat = f
	d.mu.Unlock()
	d.logger.Debug("ttce: default format changed", "format", f)
	return nil
}

// BacklogThreshold returns the number of encoder accesses a Context batches
// before submitting on its own.
func (d *Device) BacklogThreshold() int { return d.backlogThreshold }

// NewContext creates a context for recording work.
func (d *Device) NewContext() (*Context, error) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return newContext(d), nil
}

// Shader returns the compiled shader registered under id.
func (d *Device) Shader(id ShaderID) (*CompiledShader, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if int(id) >= len(d.shaders) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownShader, id)
	}
	return d.shaders[id], nil
}

// ShaderCount returns how many shaders are registered, converters included.
func (d *Device) ShaderCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.shaders)
}

// Close releases every registered pipeline and the GPU adapter.
// Close is idempotent.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	if _, err := d.gpu.Poll(true); err != nil {
		d.logger.Warn("ttce: wait for idle failed", "err", err)
	}
	d.releaseShaders()
	d.gpu.Destroy()
	d.logger.Info("ttce: device closed")
}

func (d *Device) releaseShaders() {
	d.mu.Lock()
	shaders := d.shaders
	d.shaders = nil
	clear(d.converters)
	d.mu.Unlock()
	for _, cs := range shaders {
		cs.release(d.gpu)
	}
}
