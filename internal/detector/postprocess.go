package detector

import "fmt"

// decodeOutput turns a raw YOLOv8 output tensor into candidate boxes in model
// input coordinates. The tensor is [1, 4+classes, anchors]; the transposed
// [1, anchors, 4+classes] layout is also accepted. Each anchor keeps its best
// class when that score exceeds confThreshold.
func decodeOutput(data []float32, shape []int64, confThreshold float32) ([]Detection, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("expected output shape [1, C, N], got %v", shape)
	}
	rows, cols := int(shape[1]), int(shape[2])
	if len(data) != rows*cols {
		return nil, fmt.Errorf("output data length %d does not match shape %v", len(data), shape)
	}

	transposed := rows > cols
	attrs, anchors := rows, cols
	if transposed {
		attrs, anchors = cols, rows
	}
	if attrs < 5 {
		return nil, fmt.Errorf("output has %d attributes, need at least 5", attrs)
	}

	at := func(attr, anchor int) float32 {
		if transposed {
			return data[anchor*attrs+attr]
		}
		return data[attr*anchors+anchor]
	}

	var dets []Detection
	for i := range anchors {
		bestClass, bestScore := -1, float32(0)
		for c := 4; c < attrs; c++ {
			if s := at(c, i); bestClass < 0 || s > bestScore {
				bestClass, bestScore = c-4, s
			}
		}
		if bestScore <= confThreshold {
			continue
		}
		cx, cy := float64(at(0, i)), float64(at(1, i))
		w, h := float64(at(2, i)), float64(at(3, i))
		dets = append(dets, Detection{
			X1:         cx - w/2,
			Y1:         cy - h/2,
			X2:         cx + w/2,
			Y2:         cy + h/2,
			Confidence: bestScore,
			ClassID:    bestClass,
		})
	}
	return dets, nil
}

// postprocess decodes, suppresses and maps detections back to the source image.
func postprocess(data []float32, shape []int64, lb letterbox, config Config) ([]Detection, error) {
	raw, err := decodeOutput(data, shape, config.ConfThreshold)
	if err != nil {
		return nil, err
	}
	kept := NonMaxSuppression(raw, config.IoUThreshold, config.ClassAgnostic)
	if config.MaxDetections > 0 && len(kept) > config.MaxDetections {
		kept = kept[:config.MaxDetections]
	}
	out := make([]Detection, 0, len(kept))
	for _, d := range kept {
		out = append(out, lb.unmap(d))
	}
	return out, nil
}
