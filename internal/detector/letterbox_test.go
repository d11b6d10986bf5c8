package detector

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLetterbox(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		scale      float64
		padX, padY int
	}{
		{"square", 320, 320, 2, 0, 0},
		{"landscape", 1280, 720, 0.5, 0, 140},
		{"portrait", 480, 640, 1, 80, 0},
		{"tiny", 10, 20, 32, 160, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := newLetterbox(tt.w, tt.h, 640)
			assert.InDelta(t, tt.scale, lb.scale, 1e-9)
			assert.Equal(t, tt.padX, lb.padX)
			assert.Equal(t, tt.padY, lb.padY)
		})
	}
}

func TestLetterbox_Unmap(t *testing.T) {
	lb := newLetterbox(1280, 720, 640)

	got := lb.unmap(Detection{X1: 100, Y1: 140, X2: 300, Y2: 240, Confidence: 0.5, ClassID: 3})
	assert.InDelta(t, 200, got.X1, 1e-9)
	assert.InDelta(t, 0, got.Y1, 1e-9)
	assert.InDelta(t, 600, got.X2, 1e-9)
	assert.InDelta(t, 200, got.Y2, 1e-9)
	assert.Equal(t, 3, got.ClassID)

	clamped := lb.unmap(Detection{X1: -10, Y1: 0, X2: 700, Y2: 640})
	assert.InDelta(t, 0, clamped.X1, 1e-9)
	assert.InDelta(t, 0, clamped.Y1, 1e-9)
	assert.InDelta(t, 1280, clamped.X2, 1e-9)
	assert.InDelta(t, 720, clamped.Y2, 1e-9)
}

func TestLetterboxImage(t *testing.T) {
	src := imaging.New(200, 100, color.NRGBA{R: 255, A: 255})

	boxed, lb := letterboxImage(src, 64)
	require.Equal(t, image.Rect(0, 0, 64, 64), boxed.Bounds())
	assert.Equal(t, 16, lb.padY)

	assert.Equal(t, color.NRGBA{R: padValue, G: padValue, B: padValue, A: 255}, boxed.NRGBAAt(32, 2))
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, boxed.NRGBAAt(32, 32))

	chw := toCHW(boxed)
	require.Len(t, chw, 3*64*64)
	center := 32*64 + 32
	assert.InDelta(t, 1.0, chw[center], 1e-6)
	assert.InDelta(t, 0.0, chw[64*64+center], 1e-6)
	assert.InDelta(t, float32(padValue)/255, chw[2*64*64+2*64+32], 1e-6)
}
