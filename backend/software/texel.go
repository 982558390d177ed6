package software

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"

	"github.com/ReinaS-64892/TTCE-Wgpu/gpucore"
)

// channels returns how many components a format stores.
func channels(f gpucore.TextureFormat) int {
	switch f {
	case gpucore.TextureFormatR8Unorm, gpucore.TextureFormatR16Unorm,
		gpucore.TextureFormatR16Float, gpucore.TextureFormatR32Float:
		return 1
	case gpucore.TextureFormatRG8Unorm, gpucore.TextureFormatRG16Unorm,
		gpucore.TextureFormatRG16Float, gpucore.TextureFormatRG32Float:
		return 2
	default:
		return 4
	}
}

// decodeTexel reads one texel the way a shader load sees it: missing color
// components read as 0 and a missing alpha reads as 1.
func decodeTexel(f gpucore.TextureFormat, b []byte) [4]float32 {
	v := [4]float32{0, 0, 0, 1}
	n := channels(f)
	for c := 0; c < n; c++ {
		switch f {
		case gpucore.TextureFormatR8Unorm, gpucore.TextureFormatRG8Unorm, gpucore.TextureFormatRGBA8Unorm:
			v[c] = float32(b[c]) / math.MaxUint8
		case gpucore.TextureFormatR16Unorm, gpucore.TextureFormatRG16Unorm, gpucore.TextureFormatRGBA16Unorm:
			v[c] = float32(binary.LittleEndian.Uint16(b[c*2:])) / math.MaxUint16
		case gpucore.TextureFormatR16Float, gpucore.TextureFormatRG16Float, gpucore.TextureFormatRGBA16Float:
			v[c] = float16.Frombits(binary.LittleEndian.Uint16(b[c*2:])).Float32()
		case gpucore.TextureFormatR32Float, gpucore.TextureFormatRG32Float, gpucore.TextureFormatRGBA32Float:
			v[c] = math.Float32frombits(binary.LittleEndian.Uint32(b[c*4:]))
		}
	}
	return v
}

// encodeTexel writes the leading components of v that the format stores.
// Normalized formats clamp to [0, 1] and round to nearest.
func encodeTexel(f gpucore.TextureFormat, b []byte, v [4]float32) {
	n := channels(f)
	for c := 0; c < n; c++ {
		switch f {
		case gpucore.TextureFormatR8Unorm, gpucore.TextureFormatRG8Unorm, gpucore.TextureFormatRGBA8Unorm:
			b[c] = uint8(unorm(v[c], math.MaxUint8))
		case gpucore.TextureFormatR16Unorm, gpucore.TextureFormatRG16Unorm, gpucore.TextureFormatRGBA16Unorm:
			binary.LittleEndian.PutUint16(b[c*2:], uint16(unorm(v[c], math.MaxUint16)))
		case gpucore.TextureFormatR16Float, gpucore.TextureFormatRG16Float, gpucore.TextureFormatRGBA16Float:
			binary.LittleEndian.PutUint16(b[c*2:], float16.Fromfloat32(v[c]).Bits())
		case gpucore.TextureFormatR32Float, gpucore.TextureFormatRG32Float, gpucore.TextureFormatRGBA32Float:
			binary.LittleEndian.PutUint32(b[c*4:], math.Float32bits(v[c]))
		}
	}
}

func unorm(v float32, maxValue float64) uint32 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return uint32(maxValue)
	}
	return uint32(math.Round(float64(v) * maxValue))
}
