package crop

import (
	"context"
	"fmt"
	"image"

	"github.com/MeKo-Tech/glens/internal/detector"
)

// Detector proposes object boxes for an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]detector.Detection, error)
}

// ObjectStrategy picks the largest box reported by an object detector,
// regardless of class or confidence.
type ObjectStrategy struct {
	detector Detector
}

// NewObjectStrategy wraps a detector as a crop strategy.
func NewObjectStrategy(d Detector) *ObjectStrategy {
	return &ObjectStrategy{detector: d}
}

// Kind implements Strategy.
func (s *ObjectStrategy) Kind() Kind { return KindObjectDetection }

// Candidates scores detector boxes by their float area and truncates the
// stored box to integer pixels. Boxes with no area after truncation are
// dropped. Detector order is preserved.
func (s *ObjectStrategy) Candidates(ctx context.Context, img image.Image) ([]Candidate, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("object strategy: %w", ErrNoDetectionFound)
	}
	dets, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("object detection failed: %w", err)
	}

	cands := make([]Candidate, 0, len(dets))
	for _, d := range dets {
		box := BoundingBox{X1: int(d.X1), Y1: int(d.Y1), X2: int(d.X2), Y2: int(d.Y2)}
		if box.Area() == 0 {
			continue
		}
		cands = append(cands, Candidate{Box: box, Score: (d.X2 - d.X1) * (d.Y2 - d.Y1)})
	}
	if len(cands) == 0 {
		return nil, ErrNoDetectionFound
	}
	return cands, nil
}
