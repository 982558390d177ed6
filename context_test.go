package ttce

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReinaS-64892/TTCE-Wgpu/backend/software"
	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
	"github.com/ReinaS-64892/TTCE-Wgpu/toolchain"
)

func TestBacklogThreshold(t *testing.T) {
	dev, gpu := newTestDevice(t, WithBacklogThreshold(4))
	assert.Equal(t, 4, dev.BacklogThreshold())

	c, err := dev.NewContext()
	require.NoError(t, err)

	src, err := c.NewRenderTextureWithFormat(4, 4, FormatByte, ChannelRGBA)
	require.NoError(t, err)
	dst, err := c.NewRenderTextureWithFormat(4, 4, FormatFloat, ChannelRGBA)
	require.NoError(t, err)

	id, err := dev.converter(src.PixelFormat(), dst.PixelFormat())
	require.NoError(t, err)
	h, err := c.ComputeHandler(id)
	require.NoError(t, err)
	require.NoError(t, h.BindTexture(0, src))
	require.NoError(t, h.BindTexture(1, dst))

	for i := 1; i <= 4; i++ {
		require.NoError(t, h.Dispatch(1, 1, 1))
		assert.Equal(t, Stats{Flushes: 0, Dispatches: i, Pending: i}, c.Stats())
	}
	assert.Zero(t, gpu.Submissions(), "nothing is submitted below the threshold")

	require.NoError(t, h.Dispatch(1, 1, 1))
	assert.Equal(t, Stats{Flushes: 1, Dispatches: 5, Pending: 0}, c.Stats())
	assert.Equal(t, 1, gpu.Submissions())
	assert.Equal(t, 5, gpu.Dispatches())

	require.NoError(t, h.Dispatch(1, 1, 1))
	require.NoError(t, c.Flush())
	assert.Equal(t, Stats{Flushes: 2, Dispatches: 6, Pending: 0}, c.Stats())
	h.Close()

	// Flushing with nothing recorded still submits.
	require.NoError(t, c.Flush())
	assert.Equal(t, 3, gpu.Submissions())

	require.NoError(t, c.Close())
	assert.Equal(t, 4, gpu.LiveResources(), "only the two textures and their views remain")
	src.Release()
	dst.Release()
	assert.Zero(t, gpu.LiveResources())
}

func TestDefaultBacklogThreshold(t *testing.T) {
	dev, _ := newTestDevice(t, WithBacklogThreshold(0))
	assert.Equal(t, DefaultBacklogThreshold, dev.BacklogThreshold())
}

func TestScratchTexturesReleased(t *testing.T) {
	dev, gpu := newTestDevice(t)
	c, err := dev.NewContext()
	require.NoError(t, err)

	rt, err := c.NewRenderTextureWithFormat(4, 4, FormatFloat, ChannelRGBA)
	require.NoError(t, err)
	require.NoError(t, c.UploadTexture(rt, make([]byte, 4*4*4), FormatByte))
	require.NoError(t, c.Flush())

	assert.Equal(t, 2, gpu.LiveResources(), "upload scratch and bind group are released after the flush")

	require.NoError(t, c.Close())
	rt.Release()
	assert.Zero(t, gpu.LiveResources())
}

func TestClosedContext(t *testing.T) {
	dev, _ := newTestDevice(t)
	c, err := dev.NewContext()
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Flush(), ErrClosed)
	_, err = c.ComputeHandler(0)
	assert.ErrorIs(t, err, ErrClosed)
}

var errEncoderBroken = errors.New("encoder broken")

// brokenFinishAdapter fails Finish on the next encoder it hands out.
type brokenFinishAdapter struct {
	*software.Adapter
	failNext  bool
	discarded int
}

func (a *brokenFinishAdapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	enc, err := a.Adapter.CreateCommandEncoder(label)
	if err != nil || !a.failNext {
		return enc, err
	}
	a.failNext = false
	return &brokenFinishEncoder{CommandEncoder: enc, adapter: a}, nil
}

type brokenFinishEncoder struct {
	gpucore.CommandEncoder
	adapter *brokenFinishAdapter
}

func (e *brokenFinishEncoder) Finish() (gpucore.CommandBufferID, error) {
	return gpucore.InvalidID, errEncoderBroken
}

func (e *brokenFinishEncoder) Discard() {
	e.adapter.discarded++
	e.CommandEncoder.Discard()
}

func TestFlushAfterFailedFinish(t *testing.T) {
	gpu := &brokenFinishAdapter{Adapter: software.New(), failNext: true}
	dev, err := NewDevice(gpu, WithCompiler(&toolchain.WGSL{}))
	require.NoError(t, err)
	t.Cleanup(dev.Close)

	c, err := dev.NewContext()
	require.NoError(t, err)
	rt, err := c.NewRenderTextureWithFormat(4, 4, FormatFloat, ChannelRGBA)
	require.NoError(t, err)
	require.NoError(t, c.UploadTexture(rt, make([]byte, 4*4*4), FormatByte))
	assert.NotZero(t, c.Stats().Pending)
	require.NotEmpty(t, c.retired)

	err = c.Flush()
	assert.ErrorIs(t, err, errEncoderBroken)
	assert.Equal(t, 1, gpu.discarded, "the failed encoder is discarded")
	assert.Zero(t, c.Stats().Pending)
	assert.Empty(t, c.retired)
	assert.NotEmpty(t, c.inFlight, "upload scratch waits for the next completed submission")
	assert.Zero(t, gpu.Submissions())
	assert.Zero(t, c.Stats().Flushes)

	require.NoError(t, c.Flush())
	assert.Equal(t, 1, gpu.Submissions())
	assert.Empty(t, c.inFlight)
	assert.Equal(t, 2, gpu.LiveResources(), "only the render texture remains")

	require.NoError(t, c.Close())
	rt.Release()
	assert.Zero(t, gpu.LiveResources())
}
