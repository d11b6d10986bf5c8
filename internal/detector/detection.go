package detector

import "fmt"

// Detection is an object box in original image pixel coordinates.
type Detection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float32 `json:"confidence"`
	ClassID    int     `json:"class_id"`
}

// Width returns the box width, never negative.
func (d Detection) Width() float64 { return max(0, d.X2-d.X1) }

// Height returns the box height, never negative.
func (d Detection) Height() float64 { return max(0, d.Y2-d.Y1) }

// Area returns the box area.
func (d Detection) Area() float64 { return d.Width() * d.Height() }

func (d Detection) String() string {
	return fmt.Sprintf("class=%d conf=%.3f (%.1f,%.1f)-(%.1f,%.1f)",
		d.ClassID, d.Confidence, d.X1, d.Y1, d.X2, d.Y2)
}

// IoU computes intersection over union of two boxes.
func IoU(a, b Detection) float64 {
	ix1, iy1 := max(a.X1, b.X1), max(a.Y1, b.Y1)
	ix2, iy2 := min(a.X2, b.X2), min(a.Y2, b.Y2)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
