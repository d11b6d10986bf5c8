package crop

import (
	"context"
	"image"
	"math"

	"github.com/MeKo-Tech/glens/internal/mempool"
	"github.com/disintegration/imaging"
)

// DefaultForegroundThreshold keeps every pixel whose luminance is strictly greater than 1.
const DefaultForegroundThreshold uint8 = 1

// ForegroundStrategy picks the largest outer contour of the thresholded
// grayscale image. It suits subjects on a black background.
type ForegroundStrategy struct {
	Threshold uint8
}

// NewForegroundStrategy creates a foreground strategy with the given luminance threshold.
func NewForegroundStrategy(threshold uint8) *ForegroundStrategy {
	return &ForegroundStrategy{Threshold: threshold}
}

// Kind implements Strategy.
func (s *ForegroundStrategy) Kind() Kind { return KindForeground }

// Candidates returns one candidate per outer contour, in raster order of each
// contour's top-left pixel, scored by enclosed polygon area.
func (s *ForegroundStrategy) Candidates(ctx context.Context, img image.Image) ([]Candidate, error) {
	mask, w, h := thresholdMask(img, s.Threshold)
	defer mempool.Bools.Put(mask)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	comps, labels := outerComponents(mask, w, h)
	defer mempool.Ints.Put(labels)
	if len(comps) == 0 {
		return nil, ErrNoForegroundFound
	}

	cands := make([]Candidate, 0, len(comps))
	for _, c := range comps {
		contour := traceOuterContour(labels, w, h, c.label, c.startX, c.startY)
		cands = append(cands, Candidate{
			Box:   BoundingBox{X1: c.minX, Y1: c.minY, X2: c.maxX + 1, Y2: c.maxY + 1},
			Score: polygonArea(contour),
		})
	}
	return cands, nil
}

// thresholdMask converts img to grayscale and marks pixels brighter than t.
func thresholdMask(img image.Image, t uint8) ([]bool, int, int) {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	mask := mempool.Bools.Get(w * h)
	for y := range h {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := range w {
			r, g, b := uint32(row[x*4]), uint32(row[x*4+1]), uint32(row[x*4+2])
			if luminance(r, g, b) > t {
				mask[y*w+x] = true
			}
		}
	}
	return mask, w, h
}

// luminance uses the ITU-R BT.601 weights in 16-bit fixed point.
func luminance(r, g, b uint32) uint8 {
	return uint8((19595*r + 38470*g + 7471*b + 1<<15) >> 16)
}

// component holds the bounds and seed of a connected foreground region.
type component struct {
	label  int
	count  int
	startX int
	startY int
	minX   int
	minY   int
	maxX   int
	maxY   int
}

var (
	neighbors4 = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	neighbors8 = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
)

// outerComponents labels 8-connected foreground components and keeps only the
// ones not enclosed by another component. A component is outer when it touches
// the image border or borders background that is 4-connected to the border.
func outerComponents(mask []bool, w, h int) ([]component, []int) {
	outside := borderBackground(mask, w, h)
	defer mempool.Bools.Put(outside)
	labels := mempool.Ints.Get(w * h)
	var comps []component
	next := 1

	for y := range h {
		for x := range w {
			idx := y*w + x
			if !mask[idx] || labels[idx] != 0 {
				continue
			}
			c, outer := labelComponent(mask, outside, labels, w, h, x, y, next)
			if outer {
				comps = append(comps, c)
			}
			next++
		}
	}
	return comps, labels
}

// borderBackground floods background pixels reachable from the image edge.
func borderBackground(mask []bool, w, h int) []bool {
	outside := mempool.Bools.Get(w * h)
	queue := make([]int, 0, 2*(w+h))
	push := func(x, y int) {
		i := y*w + x
		if !mask[i] && !outside[i] {
			outside[i] = true
			queue = append(queue, i)
		}
	}
	for x := range w {
		push(x, 0)
		push(x, h-1)
	}
	for y := range h {
		push(0, y)
		push(w-1, y)
	}

	for len(queue) > 0 {
		ci := queue[0]
		queue = queue[1:]
		cx, cy := ci%w, ci/w
		for _, d := range neighbors4 {
			nx, ny := cx+d[0], cy+d[1]
			if nx >= 0 && nx < w && ny >= 0 && ny < h {
				push(nx, ny)
			}
		}
	}
	return outside
}

func labelComponent(mask, outside []bool, labels []int, w, h, sx, sy, label int) (component, bool) {
	c := component{label: label, startX: sx, startY: sy, minX: sx, minY: sy, maxX: sx, maxY: sy}
	outer := false

	queue := []int{sy*w + sx}
	labels[sy*w+sx] = label
	for len(queue) > 0 {
		ci := queue[0]
		queue = queue[1:]
		cx, cy := ci%w, ci/w
		updateBounds(&c, cx, cy)

		if !outer && touchesOutside(outside, w, h, cx, cy) {
			outer = true
		}
		for _, d := range neighbors8 {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			ni := ny*w + nx
			if mask[ni] && labels[ni] == 0 {
				labels[ni] = label
				queue = append(queue, ni)
			}
		}
	}
	return c, outer
}

func updateBounds(c *component, x, y int) {
	c.count++
	if x < c.minX {
		c.minX = x
	}
	if y < c.minY {
		c.minY = y
	}
	if x > c.maxX {
		c.maxX = x
	}
	if y > c.maxY {
		c.maxY = y
	}
}

func touchesOutside(outside []bool, w, h, x, y int) bool {
	if x == 0 || y == 0 || x == w-1 || y == h-1 {
		return true
	}
	for _, d := range neighbors4 {
		if outside[(y+d[1])*w+x+d[0]] {
			return true
		}
	}
	return false
}

type point struct{ X, Y int }

// traceOuterContour walks the boundary of the labeled component clockwise with
// Moore-neighbor tracing, starting at its top-left pixel. Points are pixel centers.
func traceOuterContour(labels []int, w, h, label, sx, sy int) []point {
	start := point{sx, sy}
	pts := []point{start}

	cur := start
	back := point{sx - 1, sy}
	var second point
	haveSecond := false
	maxSteps := 4*w*h + 8

	for range maxSteps {
		next, nextBack, found := nextBoundaryPixel(labels, w, h, label, cur, back)
		if !found {
			break
		}
		if cur == start && haveSecond && next == second {
			break
		}
		if !haveSecond {
			second, haveSecond = next, true
		}
		cur, back = next, nextBack
		if cur != start {
			pts = append(pts, cur)
		}
	}
	return pts
}

// nextBoundaryPixel scans the 8-neighborhood of cur clockwise, beginning just
// after back. It returns the first pixel of the component and the background
// pixel examined right before it.
func nextBoundaryPixel(labels []int, w, h, label int, cur, back point) (point, point, bool) {
	startDir := directionIndex(back.X-cur.X, back.Y-cur.Y)
	prev := back
	for k := 1; k <= 8; k++ {
		d := neighbors8[(startDir+k)%8]
		p := point{cur.X + d[0], cur.Y + d[1]}
		if p.X >= 0 && p.X < w && p.Y >= 0 && p.Y < h && labels[p.Y*w+p.X] == label {
			return p, prev, true
		}
		prev = p
	}
	return point{}, point{}, false
}

func directionIndex(dx, dy int) int {
	for i, d := range neighbors8 {
		if d[0] == dx && d[1] == dy {
			return i
		}
	}
	return 0
}

// polygonArea returns the absolute shoelace area of a closed polygon.
func polygonArea(pts []point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum int
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(float64(sum)) / 2
}
