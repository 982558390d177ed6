package ttce

import (
	"fmt"
	"sync"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// renderTextureUsage is carried by every render texture.
const renderTextureUsage = gpucore.TextureUsageTextureBinding |
	gpucore.TextureUsageStorageBinding |
	gpucore.TextureUsageCopySrc |
	gpucore.TextureUsageCopyDst |
	gpucore.TextureUsageRenderAttachment

// RenderTexture is a 2D GPU texture tagged with one of the 12 pixel formats.
type RenderTexture struct {
	gpu    gpucore.GPUAdapter
	id     gpucore.TextureID
	view   gpucore.TextureViewID
	width  uint32
	height uint32
	format PixelFormat

	releaseOnce sync.Once
}

// Width returns the width in texels.
func (rt *RenderTexture) Width() uint32 { return rt.width }

// Height returns the height in texels.
func (rt *RenderTexture) Height() uint32 { return rt.height }

// Format returns the numeric format of each channel.
func (rt *RenderTexture) Format() TextureFormat { return rt.format.Format }

// Channel returns the channel layout.
func (rt *RenderTexture) Channel() TextureChannel { return rt.format.Channel }

// PixelFormat returns the format and channel pair the texture was allocated with.
func (rt *RenderTexture) PixelFormat() PixelFormat { return rt.format }

// EqualSize reports whether rt and other have the same dimensions.
func (rt *RenderTexture) EqualSize(other *RenderTexture) bool {
	return rt.width == other.width && rt.height == other.height
}

// Release destroys the texture. It must not be used by unfinished work.
func (rt *RenderTexture) Release() {
	rt.releaseOnce.Do(func() {
		rt.gpu.DestroyTextureView(rt.view)
		rt.gpu.DestroyTexture(rt.id)
	})
}

func (d *Device) newRenderTexture(label string, width, height uint32, format PixelFormat) (*RenderTexture, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, format)
	}
	id, err := d.gpu.CreateTexture(&gpucore.TextureDesc{
		Label:  label,
		Width:  width,
		Height: height,
		Format: format.GPUFormat(),
		Usage:  renderTextureUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("ttce: create texture: %w", err)
	}
	view, err := d.gpu.CreateTextureView(id)
	if err != nil {
		d.gpu.DestroyTexture(id)
		return nil, fmt.Errorf("ttce: create texture view: %w", err)
	}
	return &RenderTexture{
		gpu:    d.gpu,
		id:     id,
		view:   view,
		width:  width,
		height: height,
		format: format,
	}, nil
}

// NewRenderTexture allocates a texture in the device default format.
func (c *Context) NewRenderTexture(width, height uint32, channel TextureChannel) (*RenderTexture, error) {
	return c.NewRenderTextureWithFormat(width, height, c.dev.DefaultFormat(), channel)
}

// NewRenderTextureWithFormat allocates a texture in an explicit format.
func (c *Context) NewRenderTextureWithFormat(width, height uint32, format TextureFormat, channel TextureChannel) (*RenderTexture, error) {
	return c.dev.newRenderTexture("render texture", width, height, PixelFormat{format, channel})
}

// CopyTexture records a copy of src into dst. It panics when the sizes
// differ. No format conversion is performed.
func (c *Context) CopyTexture(dst, src *RenderTexture) error {
	if !dst.EqualSize(src) {
		panic(sizeMismatch("copy %dx%d into %dx%d", src.width, src.height, dst.width, dst.height))
	}
	if dst.format != src.format {
		return fmt.Errorf("%w: copy %v into %v", ErrInvalidFormat, src.format, dst.format)
	}
	enc, err := c.commandEncoder()
	if err != nil {
		return err
	}
	enc.CopyTextureToTexture(src.id, dst.id, dst.width, dst.height)
	return c.checkBacklog()
}

// UploadTexture writes tightly packed texels in format, using the
// channel layout of target. Data in another format is written to a scratch
// texture and converted into target. It panics when len(data) does not
// match the texture size.
func (c *Context) UploadTexture(target *RenderTexture, data []byte, format TextureFormat) error {
	src := PixelFormat{format, target.format.Channel}
	if !src.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, src)
	}
	rowBytes := target.width * uint32(src.BytesPerPixel())
	if want := int(rowBytes) * int(target.height); len(data) != want {
		panic(sizeMismatch("%d bytes for a %dx%d %v texture, want %d",
			len(data), target.width, target.height, src, want))
	}

	if src == target.format {
		// Queue writes land before the next submission; earlier commands
		// must reach the queue first.
		if c.encoder != nil {
			if err := c.Flush(); err != nil {
				return err
			}
		}
		return c.dev.gpu.WriteTexture(target.id, data, rowBytes)
	}

	if _, err := c.dev.converter(src, target.format); err != nil {
		return err
	}
	scratch, err := c.dev.newRenderTexture("upload scratch", target.width, target.height, src)
	if err != nil {
		return err
	}
	c.retire(scratch.Release)
	if err := c.dev.gpu.WriteTexture(scratch.id, data, rowBytes); err != nil {
		return fmt.Errorf("ttce: write texture: %w", err)
	}
	return c.convert(target, scratch)
}

// DownloadTexture copies src into a readback buffer, converting it to
// format first when that differs from the texture's own. Pass src.Format()
// to read the texture as is. The context is flushed before returning.
func (c *Context) DownloadTexture(src *RenderTexture, format TextureFormat) (*Readback, error) {
	eff := PixelFormat{format, src.format.Channel}
	if !eff.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, eff)
	}

	from := src
	var scratch *RenderTexture
	if eff != src.format {
		if _, err := c.dev.converter(src.format, eff); err != nil {
			return nil, err
		}
		var err error
		scratch, err = c.dev.newRenderTexture("download scratch", src.width, src.height, eff)
		if err != nil {
			return nil, err
		}
		if err := c.convert(scratch, src); err != nil {
			c.retire(scratch.Release)
			return nil, err
		}
		from = scratch
	}
	// The scratch texture is retired only once the copy out of it is
	// recorded, since the conversion may already have flushed.
	retireScratch := func() {
		if scratch != nil {
			c.retire(scratch.Release)
		}
	}

	rowBytes := src.width * uint32(eff.BytesPerPixel())
	stride := gpucore.AlignedBytesPerRow(rowBytes)
	size := uint64(stride) * uint64(src.height)
	buf, err := c.dev.gpu.CreateBuffer(&gpucore.BufferDesc{
		Label: "texture readback",
		Size:  size,
		Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		retireScratch()
		return nil, fmt.Errorf("ttce: create readback buffer: %w", err)
	}
	enc, err := c.commandEncoder()
	if err != nil {
		retireScratch()
		c.dev.gpu.DestroyBuffer(buf)
		return nil, err
	}
	enc.CopyTextureToBuffer(from.id, buf, src.width, src.height, stride)
	retireScratch()

	return c.readback(buf, size, readbackLayout{rowBytes: rowBytes, stride: stride, rows: src.height})
}

// convert dispatches the converter from src's format into dst's.
func (c *Context) convert(dst, src *RenderTexture) error {
	id, err := c.dev.converter(src.format, dst.format)
	if err != nil {
		return err
	}
	h, err := c.ComputeHandler(id)
	if err != nil {
		return err
	}
	defer h.Close()

	srcSlot, _ := h.BindIndex(converterSrc)
	dstSlot, _ := h.BindIndex(converterDst)
	if err := h.BindTexture(srcSlot, src); err != nil {
		return err
	}
	if err := h.BindTexture(dstSlot, dst); err != nil {
		return err
	}
	return h.DispatchFor(dst.width, dst.height)
}
