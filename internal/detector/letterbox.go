package detector

import (
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/glens/internal/mempool"
	"github.com/disintegration/imaging"
)

// padValue is the gray level used to fill letterbox borders.
const padValue = 114

// letterbox records how an image was fitted into the square model input.
type letterbox struct {
	scale      float64
	padX, padY int
	srcW, srcH int
}

// newLetterbox computes the scale and padding that fit a w x h image into a
// size x size square while keeping the aspect ratio.
func newLetterbox(w, h, size int) letterbox {
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	return letterbox{
		scale: scale,
		padX:  (size - nw) / 2,
		padY:  (size - nh) / 2,
		srcW:  w,
		srcH:  h,
	}
}

// resized returns the dimensions of the scaled image inside the square.
func (lb letterbox) resized() (int, int) {
	return int(math.Round(float64(lb.srcW) * lb.scale)), int(math.Round(float64(lb.srcH) * lb.scale))
}

// unmap converts a box from model input coordinates back to the source
// image and clamps it to the image bounds.
func (lb letterbox) unmap(d Detection) Detection {
	fx := func(v float64) float64 {
		return clamp((v-float64(lb.padX))/lb.scale, 0, float64(lb.srcW))
	}
	fy := func(v float64) float64 {
		return clamp((v-float64(lb.padY))/lb.scale, 0, float64(lb.srcH))
	}
	d.X1, d.X2 = fx(d.X1), fx(d.X2)
	d.Y1, d.Y2 = fy(d.Y1), fy(d.Y2)
	return d
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// letterboxImage scales img into a padded square canvas.
func letterboxImage(img image.Image, size int) (*image.NRGBA, letterbox) {
	b := img.Bounds()
	lb := newLetterbox(b.Dx(), b.Dy(), size)
	nw, nh := lb.resized()

	canvas := imaging.New(size, size, color.NRGBA{R: padValue, G: padValue, B: padValue, A: 255})
	resized := imaging.Resize(img, nw, nh, imaging.Linear)
	canvas = imaging.Paste(canvas, resized, image.Pt(lb.padX, lb.padY))
	return canvas, lb
}

// toCHW converts an NRGBA image to RGB planes scaled to [0,1]. The result
// comes from mempool.Float32s.
func toCHW(img *image.NRGBA) []float32 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	plane := w * h
	out := mempool.Float32s.Get(3 * plane)
	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w {
			i := y*w + x
			out[i] = float32(row[x*4]) / 255
			out[plane+i] = float32(row[x*4+1]) / 255
			out[2*plane+i] = float32(row[x*4+2]) / 255
		}
	}
	return out
}
