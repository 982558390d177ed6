package ttce

import (
	"context"
	"fmt"
	"sync"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// readbackLayout describes how rows sit in a staging buffer. stride may
// exceed rowBytes when copies require row alignment.
type readbackLayout struct {
	rowBytes uint32
	stride   uint32
	rows     uint32
}

// Readback is a pending host copy of GPU data.
type Readback struct {
	gpu    gpucore.GPUAdapter
	buffer gpucore.BufferID
	layout readbackLayout

	done chan struct{}
	data []byte
	err  error

	releaseOnce sync.Once
}

// readback flushes the context and requests a mapping of buf.
func (c *Context) readback(buf gpucore.BufferID, size uint64, layout readbackLayout) (*Readback, error) {
	if err := c.Flush(); err != nil {
		c.dev.gpu.DestroyBuffer(buf)
		return nil, err
	}
	rb := &Readback{
		gpu:    c.dev.gpu,
		buffer: buf,
		layout: layout,
		done:   make(chan struct{}),
	}
	c.dev.gpu.MapReadAsync(buf, 0, size, rb.complete)
	return rb, nil
}

func (rb *Readback) complete(data []byte, err error) {
	if err != nil {
		rb.err = fmt.Errorf("%w: %w", ErrMappingFailure, err)
	} else {
		rb.data = rb.layout.strip(data)
	}
	close(rb.done)
}

// strip removes the row padding.
func (l readbackLayout) strip(data []byte) []byte {
	out := make([]byte, int(l.rowBytes)*int(l.rows))
	for y := 0; y < int(l.rows); y++ {
		copy(out[y*int(l.rowBytes):(y+1)*int(l.rowBytes)], data[y*int(l.stride):])
	}
	return out
}

// Wait polls the device until the mapping completes and returns the tightly
// packed bytes. The staging buffer is released once the result is known.
// Wait may be called more than once.
func (rb *Readback) Wait(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-rb.done:
			rb.release()
			return rb.data, rb.err
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if _, err := rb.gpu.Poll(true); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMappingFailure, err)
		}
	}
}

func (rb *Readback) release() {
	rb.releaseOnce.Do(func() {
		rb.gpu.DestroyBuffer(rb.buffer)
	})
}
