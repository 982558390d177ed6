package ttce

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga/ir"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
	"github.com/ReinaS-64892/TTCE-Wgpu/internal/shader"
)

// TextureFormat is the numeric representation of each channel.
type TextureFormat int32

// Texture formats.
const (
	// FormatByte is 8-bit unsigned normalized.
	FormatByte TextureFormat = 0
	// FormatUShort is 16-bit unsigned normalized.
	FormatUShort TextureFormat = 1
	// FormatHalf is 16-bit float.
	FormatHalf TextureFormat = 2
	// FormatFloat is 32-bit float.
	FormatFloat TextureFormat = 3
)

func (f TextureFormat) String() string {
	switch f {
	case FormatByte:
		return "Byte"
	case FormatUShort:
		return "UShort"
	case FormatHalf:
		return "Half"
	case FormatFloat:
		return "Float"
	default:
		return fmt.Sprintf("TextureFormat(%d)", int32(f))
	}
}

// ParseTextureFormat parses a format name as printed by String,
// ignoring case.
func ParseTextureFormat(s string) (TextureFormat, error) {
	for f := FormatByte; f <= FormatFloat; f++ {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}

// Valid reports whether f is one of the four formats.
func (f TextureFormat) Valid() bool { return f >= FormatByte && f <= FormatFloat }

// bytesPerChannel returns the size of one component.
func (f TextureFormat) bytesPerChannel() int {
	switch f {
	case FormatByte:
		return 1
	case FormatUShort, FormatHalf:
		return 2
	default:
		return 4
	}
}

// TextureChannel is the channel layout. The value is the channel count.
type TextureChannel int32

// Channel layouts.
const (
	ChannelR    TextureChannel = 1
	ChannelRG   TextureChannel = 2
	ChannelRGBA TextureChannel = 4
)

func (c TextureChannel) String() string {
	switch c {
	case ChannelR:
		return "R"
	case ChannelRG:
		return "RG"
	case ChannelRGBA:
		return "RGBA"
	default:
		return fmt.Sprintf("TextureChannel(%d)", int32(c))
	}
}

// Valid reports whether c is R, RG or RGBA.
func (c TextureChannel) Valid() bool {
	return c == ChannelR || c == ChannelRG || c == ChannelRGBA
}

// PixelFormat is one of the 12 legal format and channel combinations.
type PixelFormat struct {
	Format  TextureFormat
	Channel TextureChannel
}

// Formats lists every legal pixel format.
var Formats = func() []PixelFormat {
	var out []PixelFormat
	for _, f := range []TextureFormat{FormatByte, FormatUShort, FormatHalf, FormatFloat} {
		for _, c := range []TextureChannel{ChannelR, ChannelRG, ChannelRGBA} {
			out = append(out, PixelFormat{f, c})
		}
	}
	return out
}()

func (p PixelFormat) String() string { return p.Format.String() + "/" + p.Channel.String() }

// Valid reports whether p is one of the 12 combinations.
func (p PixelFormat) Valid() bool { return p.Format.Valid() && p.Channel.Valid() }

// BytesPerPixel returns the texel stride in bytes.
func (p PixelFormat) BytesPerPixel() int {
	return p.Format.bytesPerChannel() * int(p.Channel)
}

// GPUFormat returns the texture format textures of p are allocated in.
func (p PixelFormat) GPUFormat() gpucore.TextureFormat {
	return gpuFormats[p]
}

// StorageFormat returns the storage image format shaders declare for p.
func (p PixelFormat) StorageFormat() ir.StorageFormat {
	return shader.StorageFormat(p.GPUFormat())
}

var gpuFormats = map[PixelFormat]gpucore.TextureFormat{
	{FormatByte, ChannelR}:      gpucore.TextureFormatR8Unorm,
	{FormatByte, ChannelRG}:     gpucore.TextureFormatRG8Unorm,
	{FormatByte, ChannelRGBA}:   gpucore.TextureFormatRGBA8Unorm,
	{FormatUShort, ChannelR}:    gpucore.TextureFormatR16Unorm,
	{FormatUShort, ChannelRG}:   gpucore.TextureFormatRG16Unorm,
	{FormatUShort, ChannelRGBA}: gpucore.TextureFormatRGBA16Unorm,
	{FormatHalf, ChannelR}:      gpucore.TextureFormatR16Float,
	{FormatHalf, ChannelRG}:     gpucore.TextureFormatRG16Float,
	{FormatHalf, ChannelRGBA}:   gpucore.TextureFormatRGBA16Float,
	{FormatFloat, ChannelR}:     gpucore.TextureFormatR32Float,
	{FormatFloat, ChannelRG}:    gpucore.TextureFormatRG32Float,
	{FormatFloat, ChannelRGBA}:  gpucore.TextureFormatRGBA32Float,
}
