package software

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

var _ gpucore.GPUAdapter = (*Adapter)(nil)

const copyWGSL = `
@group(0) @binding(0)
var Src: texture_storage_2d<rgba8unorm, read>;
@group(0) @binding(1)
var Dst: texture_storage_2d<rgba32float, write>;

@compute @workgroup_size(32, 32, 1)
fn CSMain(@builtin(global_invocation_id) id: vec3<u32>) {
    textureStore(Dst, id.xy, textureLoad(Src, id.xy));
}
`

const countWGSL = `
@group(0) @binding(0)
var<storage, read_write> counts: array<u32>;

@compute @workgroup_size(4, 2, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    counts[0] = id.x;
}
`

// mapSync maps a buffer range and polls until the callback fires.
func mapSync(t *testing.T, a *Adapter, id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	t.Helper()
	var (
		got    []byte
		gotErr error
		called bool
	)
	a.MapReadAsync(id, offset, size, func(b []byte, err error) {
		got, gotErr, called = b, err, true
	})
	idle, err := a.Poll(true)
	require.NoError(t, err)
	require.True(t, idle)
	require.True(t, called)
	return got, gotErr
}

func submit(t *testing.T, a *Adapter, record func(enc gpucore.CommandEncoder)) error {
	t.Helper()
	enc, err := a.CreateCommandEncoder("test")
	require.NoError(t, err)
	record(enc)
	cb, err := enc.Finish()
	require.NoError(t, err)
	return a.Submit([]gpucore.CommandBufferID{cb})
}

// pipelineFor creates a pipeline over source with a layout taken from the
// given entries.
func pipelineFor(t *testing.T, a *Adapter, label, source, entry string, entries []gpucore.BindGroupLayoutEntry) (gpucore.ComputePipelineID, gpucore.BindGroupLayoutID) {
	t.Helper()
	mod, err := a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: label, Source: source})
	require.NoError(t, err)
	bgl, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{Entries: entries})
	require.NoError(t, err)
	pl, err := a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{bgl})
	require.NoError(t, err)
	pipe, err := a.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label: label, Layout: pl, ShaderModule: mod, EntryPoint: entry,
	})
	require.NoError(t, err)
	return pipe, bgl
}

func TestBufferContentsAndMap(t *testing.T) {
	a := New()
	defer a.Destroy()

	id, err := a.CreateBuffer(&gpucore.BufferDesc{
		Size:     8,
		Usage:    gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
		Contents: []byte{1, 2},
	})
	require.NoError(t, err)

	got, err := mapSync(t, a, id, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0, 0, 0, 0, 0, 0}, got, "contents are zero-padded")

	_, err = mapSync(t, a, id, 4, 8)
	assert.Error(t, err, "range past the end")

	_, err = a.CreateBuffer(&gpucore.BufferDesc{Size: 1, Contents: []byte{1, 2}})
	assert.Error(t, err)
}

func TestMapErrors(t *testing.T) {
	a := New()
	defer a.Destroy()

	storage, err := a.CreateBuffer(&gpucore.BufferDesc{Size: 4, Usage: gpucore.BufferUsageStorage})
	require.NoError(t, err)
	_, err = mapSync(t, a, storage, 0, 4)
	assert.ErrorIs(t, err, ErrNotMappable)

	_, err = mapSync(t, a, 12345, 0, 4)
	assert.ErrorIs(t, err, ErrNotFound)

	a.SetLost(true)
	_, err = mapSync(t, a, storage, 0, 4)
	assert.ErrorIs(t, err, ErrDeviceLost)
}

func TestTextureCopyToBuffer(t *testing.T) {
	a := New()
	defer a.Destroy()

	tex, err := a.CreateTexture(&gpucore.TextureDesc{Width: 2, Height: 2, Format: gpucore.TextureFormatRGBA8Unorm})
	require.NoError(t, err)
	data := []byte{
		1, 2, 3, 4, 5, 6, 7, 8, 0xee, 0xee, // padded source rows
		9, 10, 11, 12, 13, 14, 15, 16,
	}
	require.NoError(t, a.WriteTexture(tex, data, 10))
	assert.Error(t, a.WriteTexture(tex, data[:8], 8), "too short for two rows")

	buf, err := a.CreateBuffer(&gpucore.BufferDesc{Size: 2 * gpucore.CopyRowAlignment, Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst})
	require.NoError(t, err)
	require.NoError(t, submit(t, a, func(enc gpucore.CommandEncoder) {
		enc.CopyTextureToBuffer(tex, buf, 2, 2, gpucore.CopyRowAlignment)
	}))

	got, err := mapSync(t, a, buf, 0, 2*gpucore.CopyRowAlignment)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got[:8])
	assert.Equal(t, []byte{9, 10, 11, 12, 13, 14, 15, 16}, got[gpucore.CopyRowAlignment:gpucore.CopyRowAlignment+8])

	err = submit(t, a, func(enc gpucore.CommandEncoder) {
		enc.CopyTextureToBuffer(tex, buf, 2, 2, 100)
	})
	assert.ErrorIs(t, err, ErrInvalidCopy, "unaligned row pitch")
}

func TestTextureCopyToTexture(t *testing.T) {
	a := New()
	defer a.Destroy()

	desc := &gpucore.TextureDesc{Width: 2, Height: 1, Format: gpucore.TextureFormatR8Unorm}
	src, err := a.CreateTexture(desc)
	require.NoError(t, err)
	dst, err := a.CreateTexture(desc)
	require.NoError(t, err)
	require.NoError(t, a.WriteTexture(src, []byte{7, 8}, 2))
	require.NoError(t, submit(t, a, func(enc gpucore.CommandEncoder) {
		enc.CopyTextureToTexture(src, dst, 2, 1)
	}))
	assert.Equal(t, []byte{7, 8}, a.textures[dst].data)

	other, err := a.CreateTexture(&gpucore.TextureDesc{Width: 2, Height: 1, Format: gpucore.TextureFormatR16Float})
	require.NoError(t, err)
	err = submit(t, a, func(enc gpucore.CommandEncoder) {
		enc.CopyTextureToTexture(src, other, 2, 1)
	})
	assert.ErrorIs(t, err, ErrInvalidCopy, "format mismatch")
}

func TestCopyKernelDispatch(t *testing.T) {
	a := New()
	defer a.Destroy()

	pipe, bgl := pipelineFor(t, a, "copy", copyWGSL, "CSMain", []gpucore.BindGroupLayoutEntry{
		{Binding: 0, Type: gpucore.BindingTypeStorageTexture, StorageFormat: gpucore.TextureFormatRGBA8Unorm, Access: gpucore.StorageAccessReadOnly},
		{Binding: 1, Type: gpucore.BindingTypeStorageTexture, StorageFormat: gpucore.TextureFormatRGBA32Float, Access: gpucore.StorageAccessWriteOnly},
	})
	assert.Equal(t, [3]uint32{16, 16, 1}, a.computePipelines[pipe].wg, "work group is clamped")

	const w, h = 20, 3
	src, err := a.CreateTexture(&gpucore.TextureDesc{Width: w, Height: h, Format: gpucore.TextureFormatRGBA8Unorm})
	require.NoError(t, err)
	dst, err := a.CreateTexture(&gpucore.TextureDesc{Width: w, Height: h, Format: gpucore.TextureFormatRGBA32Float})
	require.NoError(t, err)
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = byte(i)
	}
	require.NoError(t, a.WriteTexture(src, pix, w*4))

	srcView, err := a.CreateTextureView(src)
	require.NoError(t, err)
	dstView, err := a.CreateTextureView(dst)
	require.NoError(t, err)
	bg, err := a.CreateBindGroup(&gpucore.BindGroupDesc{Layout: bgl, Entries: []gpucore.BindGroupEntry{
		{Binding: 0, TextureView: srcView},
		{Binding: 1, TextureView: dstView},
	}})
	require.NoError(t, err)

	require.NoError(t, submit(t, a, func(enc gpucore.CommandEncoder) {
		pass := enc.BeginComputePass("copy")
		pass.SetPipeline(pipe)
		pass.SetBindGroup(0, bg)
		pass.Dispatch(2, 1, 1)
		pass.End()
	}))
	assert.Equal(t, 1, a.Dispatches())

	out := a.textures[dst].data
	for i, b := range pix {
		v := math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
		assert.InDelta(t, float32(b)/255, v, 1e-6, "component %d", i)
	}
}

func TestRegisteredKernel(t *testing.T) {
	a := New()
	defer a.Destroy()

	var invocations atomic.Int32
	a.RegisterKernel("count", func(*Invocation, [3]uint32) { invocations.Add(1) })
	pipe, bgl := pipelineFor(t, a, "count", countWGSL, "main", []gpucore.BindGroupLayoutEntry{
		{Binding: 0, Type: gpucore.BindingTypeStorageBuffer},
	})
	buf, err := a.CreateBuffer(&gpucore.BufferDesc{Size: 4, Usage: gpucore.BufferUsageStorage})
	require.NoError(t, err)
	bg, err := a.CreateBindGroup(&gpucore.BindGroupDesc{Layout: bgl, Entries: []gpucore.BindGroupEntry{{Binding: 0, Buffer: buf}}})
	require.NoError(t, err)

	require.NoError(t, submit(t, a, func(enc gpucore.CommandEncoder) {
		pass := enc.BeginComputePass("count")
		pass.SetPipeline(pipe)
		pass.SetBindGroup(0, bg)
		pass.Dispatch(3, 2, 1)
		pass.End()
	}))
	assert.Equal(t, int32(3*4*2*2), invocations.Load())
}

func TestBindGroupValidation(t *testing.T) {
	a := New()
	defer a.Destroy()

	bgl, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{Entries: []gpucore.BindGroupLayoutEntry{
		{Binding: 0, Type: gpucore.BindingTypeStorageBuffer},
	}})
	require.NoError(t, err)

	_, err = a.CreateBindGroup(&gpucore.BindGroupDesc{Layout: bgl})
	assert.Error(t, err, "entry count mismatch")
	_, err = a.CreateBindGroup(&gpucore.BindGroupDesc{Layout: bgl, Entries: []gpucore.BindGroupEntry{{Binding: 0, Buffer: 77}}})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{bgl + 100})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEncoderLifecycle(t *testing.T) {
	a := New()
	defer a.Destroy()

	enc, err := a.CreateCommandEncoder("twice")
	require.NoError(t, err)
	_, err = enc.Finish()
	require.NoError(t, err)
	_, err = enc.Finish()
	assert.Error(t, err)

	assert.ErrorIs(t, a.Submit([]gpucore.CommandBufferID{4242}), ErrNotFound)
	assert.Equal(t, 1, a.Submissions())
}

func TestDestroy(t *testing.T) {
	a := New()
	_, err := a.CreateBuffer(&gpucore.BufferDesc{Size: 4})
	require.NoError(t, err)
	tex, err := a.CreateTexture(&gpucore.TextureDesc{Width: 1, Height: 1, Format: gpucore.TextureFormatR8Unorm})
	require.NoError(t, err)
	_, err = a.CreateTextureView(tex)
	require.NoError(t, err)
	assert.Equal(t, 3, a.LiveResources())

	a.Destroy()
	assert.Zero(t, a.LiveResources())
	assert.False(t, a.pool.IsRunning())
}

func TestTexelCodec(t *testing.T) {
	tests := []struct {
		format gpucore.TextureFormat
		in     [4]float32
		want   [4]float32
	}{
		{gpucore.TextureFormatRGBA8Unorm, [4]float32{0, 1, 2, -1}, [4]float32{0, 1, 1, 0}},
		{gpucore.TextureFormatR8Unorm, [4]float32{0.5, 0.7, 0.7, 0.7}, [4]float32{128.0 / 255, 0, 0, 1}},
		{gpucore.TextureFormatRG16Unorm, [4]float32{1, 0.25, 0.7, 0.7}, [4]float32{1, 16384.0 / 65535, 0, 1}},
		{gpucore.TextureFormatRGBA16Float, [4]float32{0.5, -2, 1024, 0.25}, [4]float32{0.5, -2, 1024, 0.25}},
		{gpucore.TextureFormatRG32Float, [4]float32{3.25, -7, 9, 9}, [4]float32{3.25, -7, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			b := make([]byte, tt.format.BlockSize())
			encodeTexel(tt.format, b, tt.in)
			got := decodeTexel(tt.format, b)
			for i := range got {
				assert.InDelta(t, tt.want[i], got[i], 1e-6, "component %d", i)
			}
		})
	}
}
