package image

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := range 2 {
		for x := range 3 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 80), G: uint8(y * 120), B: 30, A: 255})
		}
	}
	return img
}

func TestLoadFormats(t *testing.T) {
	dir := t.TempDir()
	want := testImage()

	encoders := map[string]func(*bytes.Buffer) error{
		"in.png":  func(b *bytes.Buffer) error { return EncodePNG(b, want) },
		"in.bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, want) },
		"in.tiff": func(b *bytes.Buffer) error { return tiff.Encode(b, want, nil) },
		// No extension: detected from content.
		"in": func(b *bytes.Buffer) error { return EncodePNG(b, want) },
	}
	for name, enc := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, enc(&buf))
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, Pixels(want), Pixels(got))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	_, err = LoadFromBytes(nil)
	assert.ErrorIs(t, err, ErrEmptyData)
	_, err = LoadFromBytes([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestToNRGBA(t *testing.T) {
	src := testImage()
	assert.Same(t, src, ToNRGBA(src))

	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(1, 1, color.Gray{Y: 128})
	got := ToNRGBA(gray)
	assert.Equal(t, color.NRGBA{R: 128, G: 128, B: 128, A: 255}, got.NRGBAAt(1, 1))

	// A sub-image is re-based at the origin with a tight stride.
	sub := src.SubImage(image.Rect(1, 0, 3, 2)).(*image.NRGBA)
	got = ToNRGBA(sub)
	assert.Equal(t, image.Rect(0, 0, 2, 2), got.Bounds())
	assert.Equal(t, src.NRGBAAt(1, 1), got.NRGBAAt(0, 1))
}

func TestPixelsRoundTrip(t *testing.T) {
	src := testImage()
	pix := Pixels(src)
	require.Len(t, pix, 3*2*4)

	back, err := FromPixels(3, 2, pix)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, back.Pix)

	_, err = FromPixels(3, 2, pix[:5])
	assert.ErrorIs(t, err, ErrSize)
	_, err = FromPixels(0, 2, nil)
	assert.ErrorIs(t, err, ErrSize)
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, SavePNG(path, testImage()))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Pixels(testImage()), Pixels(got))
}
