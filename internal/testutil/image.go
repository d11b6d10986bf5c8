package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// NewCanvas returns a width x height RGBA image filled with bg.
func NewCanvas(width, height int, bg color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	return img
}

// FillRect paints rect on img with col.
func FillRect(img *image.RGBA, rect image.Rectangle, col color.Color) {
	draw.Draw(img, rect.Intersect(img.Bounds()), &image.Uniform{C: col}, image.Point{}, draw.Src)
}

// BlackWithSquare builds the standard padded fixture: a black canvas with one white square.
func BlackWithSquare(width, height int, square image.Rectangle) *image.RGBA {
	img := NewCanvas(width, height, color.Black)
	FillRect(img, square, color.White)
	return img
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// SaveImage writes img into dir/name using the format implied by the extension.
func SaveImage(t *testing.T, img image.Image, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, imaging.Save(img, path))
	return path
}

// LoadImage decodes the image at path, failing the test on error.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	img, err := imaging.Open(path)
	require.NoError(t, err)
	return img
}
