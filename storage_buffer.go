package ttce

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// StorageBuffer is a reference counted GPU byte buffer. A new buffer holds
// one reference; handlers take their own while the buffer is bound.
type StorageBuffer struct {
	gpu          gpucore.GPUAdapter
	id           gpucore.BufferID
	length       int
	size         uint64
	downloadable bool
	refs         atomic.Int32
}

// Len returns the logical length in bytes.
func (b *StorageBuffer) Len() int { return b.length }

// Downloadable reports whether the buffer can be read back.
func (b *StorageBuffer) Downloadable() bool { return b.downloadable }

// Retain adds a reference and returns b.
func (b *StorageBuffer) Retain() *StorageBuffer {
	b.refs.Add(1)
	return b
}

// Release drops a reference. The GPU buffer is destroyed with the last one.
func (b *StorageBuffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.gpu.DestroyBuffer(b.id)
	}
}

func storageUsage(downloadable bool) gpucore.BufferUsage {
	usage := gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst
	if downloadable {
		usage |= gpucore.BufferUsageCopySrc
	}
	return usage
}

// align4 rounds n up to a multiple of 4 with a minimum of 4.
func align4(n int) uint64 {
	return uint64(max((n+3)&^3, 4))
}

// AllocateStorageBuffer creates a zero-filled buffer of length bytes,
// rounded up to a multiple of 4 with a minimum of 4.
func (c *Context) AllocateStorageBuffer(length int, downloadable bool) (*StorageBuffer, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: storage buffer length %d", ErrInvalidSize, length)
	}
	size := align4(length)
	return c.dev.newStorageBuffer(fmt.Sprintf("storage buffer from allocate - Length:%d", length),
		int(size), size, downloadable, nil)
}

// UploadStorageBuffer creates a buffer holding a copy of data. Len is
// exactly len(data); the allocation is padded to 4 bytes.
func (c *Context) UploadStorageBuffer(data []byte, downloadable bool) (*StorageBuffer, error) {
	return c.dev.newStorageBuffer(fmt.Sprintf("storage buffer from upload - Length:%d", len(data)),
		len(data), align4(len(data)), downloadable, data)
}

func (d *Device) newStorageBuffer(label string, length int, size uint64, downloadable bool, contents []byte) (*StorageBuffer, error) {
	id, err := d.gpu.CreateBuffer(&gpucore.BufferDesc{
		Label:    label,
		Size:     size,
		Usage:    storageUsage(downloadable),
		Contents: contents,
	})
	if err != nil {
		return nil, fmt.Errorf("ttce: create storage buffer: %w", err)
	}
	b := &StorageBuffer{
		gpu:          d.gpu,
		id:           id,
		length:       length,
		size:         size,
		downloadable: downloadable,
	}
	b.refs.Store(1)
	return b, nil
}

// DownloadStorageBuffer copies buf back to the host. Buffers created
// without downloadable fail with ErrNotDownloadable before any GPU work.
func (c *Context) DownloadStorageBuffer(ctx context.Context, buf *StorageBuffer) ([]byte, error) {
	if !buf.downloadable {
		return nil, fmt.Errorf("%w: %d byte buffer", ErrNotDownloadable, buf.length)
	}
	staging, err := c.dev.gpu.CreateBuffer(&gpucore.BufferDesc{
		Label: "storage buffer readback",
		Size:  buf.size,
		Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("ttce: create readback buffer: %w", err)
	}
	enc, err := c.commandEncoder()
	if err != nil {
		c.dev.gpu.DestroyBuffer(staging)
		return nil, err
	}
	enc.CopyBufferToBuffer(buf.id, 0, staging, 0, buf.size)

	rb, err := c.readback(staging, buf.size, readbackLayout{
		rowBytes: uint32(buf.length),
		stride:   uint32(buf.size),
		rows:     1,
	})
	if err != nil {
		return nil, err
	}
	return rb.Wait(ctx)
}
