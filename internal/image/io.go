// Package image loads and saves the 8-bit RGBA images the ttce command
// feeds through render textures.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the image format is not supported.
	ErrUnsupportedFormat = errors.New("image: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("image: empty data")

	// ErrSize is returned when pixel data does not match the image size.
	ErrSize = errors.New("image: pixel data does not match size")
)

// decoders maps file extensions to format-specific decoders.
var decoders = map[string]func(io.Reader) (image.Image, error){
	".png":  png.Decode,
	".jpg":  jpeg.Decode,
	".jpeg": jpeg.Decode,
	".bmp":  bmp.Decode,
	".tif":  tiff.Decode,
	".tiff": tiff.Decode,
}

// Load loads an image from the given file path. The format is chosen by
// extension and detected from content otherwise.
// Supported formats: PNG, JPEG, BMP, TIFF.
func Load(path string) (*image.NRGBA, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("image: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if dec, ok := decoders[strings.ToLower(filepath.Ext(path))]; ok {
		img, err := dec(f)
		if err != nil {
			return nil, fmt.Errorf("image: decode %s: %w", filepath.Base(path), err)
		}
		return ToNRGBA(img), nil
	}
	return Decode(f)
}

// LoadFromBytes decodes an image from a byte slice, auto-detecting the format.
func LoadFromBytes(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return Decode(bytes.NewReader(data))
}

// Decode decodes an image from the given reader, auto-detecting the format.
func Decode(r io.Reader) (*image.NRGBA, error) {
	img, _, err := image.Decode(r)
	if errors.Is(err, image.ErrFormat) {
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, fmt.Errorf("image: decode: %w", err)
	}
	return ToNRGBA(img), nil
}

// ToNRGBA converts any image to non-premultiplied RGBA with its origin at
// (0, 0). An *image.NRGBA already in that shape is returned as is.
func ToNRGBA(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && bounds.Min == (image.Point{}) && n.Stride == 4*bounds.Dx() {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// Pixels returns the tightly packed RGBA8 rows of img.
func Pixels(img *image.NRGBA) []byte {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if img.Stride == 4*w {
		return img.Pix[:4*w*h]
	}
	out := make([]byte, 0, 4*w*h)
	for y := range h {
		start := y * img.Stride
		out = append(out, img.Pix[start:start+4*w]...)
	}
	return out
}

// FromPixels wraps tightly packed RGBA8 rows as an image.
func FromPixels(width, height int, pix []byte) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 || len(pix) != 4*width*height {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrSize, len(pix), width, height)
	}
	return &image.NRGBA{
		Pix:    pix,
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// SavePNG saves the image as a PNG file.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}

	if err := EncodePNG(f, img); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// EncodePNG encodes the image as PNG to the given writer.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("image: encode PNG: %w", err)
	}
	return nil
}
