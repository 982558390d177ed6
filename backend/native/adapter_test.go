//go:build !nogpu

package native

import (
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// newNoopAdapter wraps a noop device in a HALAdapter that owns it.
func newNoopAdapter(t *testing.T) *HALAdapter {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)

	a, err := openInstance(instance, Options{})
	if err != nil {
		instance.Destroy()
		t.Fatalf("open noop device: %v", err)
	}
	t.Cleanup(a.Destroy)
	return a
}

func TestHALAdapterInterface(t *testing.T) {
	var _ gpucore.GPUAdapter = (*HALAdapter)(nil)
}

func TestNewHALAdapterNil(t *testing.T) {
	_, err := NewHALAdapter(nil, nil)
	assert.ErrorIs(t, err, ErrNoGPU)
}

func TestHALAdapterResources(t *testing.T) {
	a := newNoopAdapter(t)
	assert.True(t, a.owned)

	buf, err := a.CreateBuffer(&gpucore.BufferDesc{
		Label:    "storage",
		Size:     16,
		Usage:    gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst,
		Contents: []byte{1, 2, 3, 4},
	})
	require.NoError(t, err)
	assert.NotEqual(t, gpucore.BufferID(gpucore.InvalidID), buf)

	tex, err := a.CreateTexture(&gpucore.TextureDesc{
		Label:  "rt",
		Width:  4,
		Height: 4,
		Format: gpucore.TextureFormatRGBA16Float,
		Usage:  gpucore.TextureUsageStorageBinding | gpucore.TextureUsageCopySrc | gpucore.TextureUsageCopyDst,
	})
	require.NoError(t, err)
	require.NoError(t, a.WriteTexture(tex, make([]byte, 4*4*8), 4*8))
	assert.Error(t, a.WriteTexture(tex, make([]byte, 8), 4*8), "short data is rejected")

	view, err := a.CreateTextureView(tex)
	require.NoError(t, err)

	a.DestroyTextureView(view)
	a.DestroyTexture(tex)
	a.DestroyBuffer(buf)
	// Destroying twice or destroying the zero ID is a no-op.
	a.DestroyBuffer(buf)
	a.DestroyTexture(gpucore.InvalidID)

	assert.ErrorIs(t, a.WriteTexture(tex, nil, 0), ErrNotFound)
	_, err = a.CreateTextureView(tex)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHALAdapterCreateInvalid(t *testing.T) {
	a := newNoopAdapter(t)

	_, err := a.CreateBuffer(&gpucore.BufferDesc{Size: 0})
	assert.Error(t, err)
	_, err = a.CreateBuffer(&gpucore.BufferDesc{Size: 4, Contents: make([]byte, 8)})
	assert.Error(t, err)

	_, err = a.CreateTexture(&gpucore.TextureDesc{Width: 4, Height: 4, Format: gpucore.TextureFormatUndefined})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = a.CreateTexture(&gpucore.TextureDesc{Width: 0, Height: 4, Format: gpucore.TextureFormatR8Unorm})
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = a.CreateShaderModule(&gpucore.ShaderModuleDesc{Label: "empty"})
	assert.Error(t, err)

	_, err = a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{42})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = a.CreateComputePipeline(&gpucore.ComputePipelineDesc{Layout: 1, ShaderModule: 2})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = a.CreateBindGroup(&gpucore.BindGroupDesc{Layout: 42})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, a.Submit([]gpucore.CommandBufferID{42}), ErrNotFound)
}

func TestHALAdapterBindGroup(t *testing.T) {
	a := newNoopAdapter(t)

	layout, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "layout",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: 16},
			{Binding: 1, Type: gpucore.BindingTypeStorageTexture,
				StorageFormat: gpucore.TextureFormatRGBA8Unorm, Access: gpucore.StorageAccessReadWrite},
		},
	})
	require.NoError(t, err)
	defer a.DestroyBindGroupLayout(layout)

	uniform, err := a.CreateBuffer(&gpucore.BufferDesc{Size: 16, Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst})
	require.NoError(t, err)
	defer a.DestroyBuffer(uniform)
	tex, err := a.CreateTexture(&gpucore.TextureDesc{Width: 2, Height: 2,
		Format: gpucore.TextureFormatRGBA8Unorm, Usage: gpucore.TextureUsageStorageBinding})
	require.NoError(t, err)
	defer a.DestroyTexture(tex)
	view, err := a.CreateTextureView(tex)
	require.NoError(t, err)
	defer a.DestroyTextureView(view)

	group, err := a.CreateBindGroup(&gpucore.BindGroupDesc{
		Layout: layout,
		Entries: []gpucore.BindGroupEntry{
			{Binding: 0, Buffer: uniform},
			{Binding: 1, TextureView: view},
		},
	})
	require.NoError(t, err)

	a.mu.RLock()
	assert.Equal(t, []gpucore.TextureID{tex}, a.bindGroups[group].textures)
	a.mu.RUnlock()
	a.DestroyBindGroup(group)

	_, err = a.CreateBindGroup(&gpucore.BindGroupDesc{
		Layout:  layout,
		Entries: []gpucore.BindGroupEntry{{Binding: 0}},
	})
	assert.Error(t, err, "an entry without a resource is rejected")
}

func TestHALAdapterSubmitAndPoll(t *testing.T) {
	a := newNoopAdapter(t)

	idle, err := a.Poll(false)
	require.NoError(t, err)
	assert.True(t, idle, "nothing submitted yet")

	enc, err := a.CreateCommandEncoder("test")
	require.NoError(t, err)
	cmd, err := enc.Finish()
	require.NoError(t, err)
	_, err = enc.Finish()
	assert.Error(t, err, "an encoder finishes once")

	require.NoError(t, a.Submit([]gpucore.CommandBufferID{cmd}))
	require.NoError(t, a.Submit(nil))
	assert.Equal(t, uint64(2), a.submitted)

	idle, err = a.Poll(true)
	require.NoError(t, err)
	assert.True(t, idle)
	assert.Empty(t, a.inFlight)
}

func TestHALAdapterEncoderUnknownResource(t *testing.T) {
	a := newNoopAdapter(t)

	enc, err := a.CreateCommandEncoder("bad")
	require.NoError(t, err)
	enc.CopyBufferToBuffer(7, 0, 8, 0, 4)
	_, err = enc.Finish()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = enc.Finish()
	assert.ErrorIs(t, err, ErrNotFound, "a failed encoder stays open until discarded")
	enc.Discard()
	enc.Discard()
	_, err = enc.Finish()
	assert.ErrorContains(t, err, "already finished")

	enc, err = a.CreateCommandEncoder("unaligned")
	require.NoError(t, err)
	enc.CopyTextureToBuffer(1, 2, 4, 4, 100)
	_, err = enc.Finish()
	assert.Error(t, err)
}

func TestHALAdapterDestroy(t *testing.T) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	a, err := openInstance(instance, Options{})
	require.NoError(t, err)

	done := make(chan error, 1)
	a.MapReadAsync(99, 0, 4, func(_ []byte, err error) { done <- err })
	a.Destroy()
	a.Destroy()

	assert.ErrorIs(t, <-done, ErrNotFound, "the map resolved during the final poll")
	_, err = a.Poll(false)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, a.Submit(nil), ErrNotInitialized)
}

func TestSelectAdapter(t *testing.T) {
	_, err := selectAdapter(nil, PreferenceAuto)
	assert.ErrorIs(t, err, ErrNoGPU)

	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)

	selected, err := selectAdapter(adapters, PreferenceAuto)
	require.NoError(t, err)
	assert.NotNil(t, selected)
}

func TestPowerPreferenceString(t *testing.T) {
	assert.Equal(t, "auto", PreferenceAuto.String())
	assert.Equal(t, "high-performance", PreferenceHighPerformance.String())
	assert.Equal(t, "low-power", PreferenceLowPower.String())
}

func TestConvertTextureFormat(t *testing.T) {
	tests := []struct {
		in   gpucore.TextureFormat
		want gputypes.TextureFormat
	}{
		{gpucore.TextureFormatR8Unorm, gputypes.TextureFormatR8Unorm},
		{gpucore.TextureFormatRG8Unorm, gputypes.TextureFormatRG8Unorm},
		{gpucore.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8Unorm},
		{gpucore.TextureFormatR16Unorm, gputypes.TextureFormatR16Unorm},
		{gpucore.TextureFormatRG16Unorm, gputypes.TextureFormatRG16Unorm},
		{gpucore.TextureFormatRGBA16Unorm, gputypes.TextureFormatRGBA16Unorm},
		{gpucore.TextureFormatR16Float, gputypes.TextureFormatR16Float},
		{gpucore.TextureFormatRG16Float, gputypes.TextureFormatRG16Float},
		{gpucore.TextureFormatRGBA16Float, gputypes.TextureFormatRGBA16Float},
		{gpucore.TextureFormatR32Float, gputypes.TextureFormatR32Float},
		{gpucore.TextureFormatRG32Float, gputypes.TextureFormatRG32Float},
		{gpucore.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Float},
	}
	for _, tt := range tests {
		got, ok := convertTextureFormat(tt.in)
		assert.True(t, ok, tt.in.String())
		assert.Equal(t, tt.want, got, tt.in.String())
	}
	_, ok := convertTextureFormat(gpucore.TextureFormatUndefined)
	assert.False(t, ok)
}

func TestConvertUsage(t *testing.T) {
	assert.Equal(t,
		gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst,
		convertBufferUsage(gpucore.BufferUsageMapRead|gpucore.BufferUsageCopyDst))
	assert.Equal(t,
		gputypes.BufferUsageStorage|gputypes.BufferUsageUniform|gputypes.BufferUsageCopySrc,
		convertBufferUsage(gpucore.BufferUsageStorage|gpucore.BufferUsageUniform|gpucore.BufferUsageCopySrc))
	assert.Equal(t,
		gputypes.TextureUsageStorageBinding|gputypes.TextureUsageCopySrc,
		convertTextureUsage(gpucore.TextureUsageStorageBinding|gpucore.TextureUsageCopySrc))
}

func TestConvertBindGroupLayoutEntry(t *testing.T) {
	e, err := convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{
		Binding:       3,
		Type:          gpucore.BindingTypeStorageTexture,
		StorageFormat: gpucore.TextureFormatR32Float,
		Access:        gpucore.StorageAccessWriteOnly,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), e.Binding)
	require.NotNil(t, e.StorageTexture)
	assert.Equal(t, gputypes.TextureFormatR32Float, e.StorageTexture.Format)
	assert.Equal(t, gputypes.StorageTextureAccessWriteOnly, e.StorageTexture.Access)

	e, err = convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{Type: gpucore.BindingTypeReadOnlyStorageBuffer})
	require.NoError(t, err)
	require.NotNil(t, e.Buffer)
	assert.Equal(t, gputypes.BufferBindingTypeReadOnlyStorage, e.Buffer.Type)

	_, err = convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{Type: gpucore.BindingTypeStorageTexture})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{Type: 99})
	assert.Error(t, err)
}

// mockDevice implements gpucontext.Device for testing.
type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

// mockQueue implements gpucontext.Queue for testing.
type mockQueue struct{}

// mockAdapter implements gpucontext.Adapter for testing.
type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider without HAL access.
type mockProvider struct{}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

// halMockProvider exposes a noop device through HalDevice and HalQueue.
type halMockProvider struct {
	mockProvider
	device hal.Device
	queue  hal.Queue
}

func (m *halMockProvider) HalDevice() any { return m.device }
func (m *halMockProvider) HalQueue() any  { return m.queue }

func TestNewFromProvider(t *testing.T) {
	_, err := NewFromProvider(&mockProvider{})
	assert.ErrorIs(t, err, ErrNoGPU)

	_, err = NewFromProvider(&halMockProvider{})
	assert.ErrorIs(t, err, ErrNoGPU, "nil HAL handles are rejected")

	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	require.NoError(t, err)
	defer openDev.Device.Destroy()

	a, err := NewFromProvider(&halMockProvider{device: openDev.Device, queue: openDev.Queue})
	require.NoError(t, err)
	assert.False(t, a.owned)
	a.Destroy()
}
