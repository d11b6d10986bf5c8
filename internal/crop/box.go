package crop

import (
	"fmt"
	"image"
)

// BoundingBox is an integer pixel rectangle with exclusive max coordinates.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Valid reports whether the box has positive width and height.
func (b BoundingBox) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// Width returns X2-X1.
func (b BoundingBox) Width() int { return b.X2 - b.X1 }

// Height returns Y2-Y1.
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// Area returns the pixel area of the box, 0 for invalid boxes.
func (b BoundingBox) Area() int {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// Rect converts the box to an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.X1, b.Y1, b.X2, b.Y2)
}

// Candidate is a region proposed by a Strategy. Score ranks candidates; the
// highest score wins and the earliest candidate wins ties.
type Candidate struct {
	Box   BoundingBox
	Score float64
}

// selectLargest returns the index of the highest scoring candidate, or -1 when
// there are none. Comparison is strict so the first of equal scores is kept.
func selectLargest(cands []Candidate) int {
	best := -1
	for i, c := range cands {
		if best == -1 || c.Score > cands[best].Score {
			best = i
		}
	}
	return best
}
