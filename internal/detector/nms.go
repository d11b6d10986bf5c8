package detector

import "sort"

// NonMaxSuppression performs greedy hard NMS. Boxes are visited by
// descending confidence and the result keeps that order. Unless
// classAgnostic is set, only boxes of the same class suppress each other.
func NonMaxSuppression(dets []Detection, iouThreshold float64, classAgnostic bool) []Detection {
	if len(dets) <= 1 {
		return dets
	}

	order := sortByConfidence(dets)
	suppressed := make([]bool, len(dets))
	kept := make([]Detection, 0, len(dets))

	for i, a := range order {
		if suppressed[a] {
			continue
		}
		kept = append(kept, dets[a])

		for _, b := range order[i+1:] {
			if suppressed[b] {
				continue
			}
			if !classAgnostic && dets[a].ClassID != dets[b].ClassID {
				continue
			}
			if IoU(dets[a], dets[b]) > iouThreshold {
				suppressed[b] = true
			}
		}
	}
	return kept
}

// sortByConfidence returns indices ordered by descending confidence, stable for ties.
func sortByConfidence(dets []Detection) []int {
	idx := make([]int, len(dets))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return dets[idx[i]].Confidence > dets[idx[j]].Confidence
	})
	return idx
}
