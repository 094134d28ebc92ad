package yolo

import (
	"sort"

	iface "ScreenDetAgent/interface"
)

// NMS is greedy, class-agnostic suppression. Boxes scoring above
// scoreThreshold are visited by descending score (ties keep input order);
// a box is kept unless its IoU with an already kept box exceeds
// iouThreshold. The kept indices are returned in visiting order.
func NMS(boxes []iface.Box, scores []float32, scoreThreshold, iouThreshold float32) []int {
	order := make([]int, 0, len(scores))
	for i, s := range scores {
		if i < len(boxes) && s > scoreThreshold {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	keep := make([]int, 0, len(order))
	for _, idx := range order {
		suppressed := false
		for _, k := range keep {
			if IoU(boxes[idx], boxes[k]) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			keep = append(keep, idx)
		}
	}
	return keep
}

// IoU of two integer boxes. Two empty boxes count as identical.
func IoU(a, b iface.Box) float32 {
	areaA, areaB := a.Area(), b.Area()
	if areaA+areaB == 0 {
		return 1
	}
	inter := a.Rect().Intersect(b.Rect())
	interArea := inter.Dx() * inter.Dy()
	return float32(float64(interArea) / float64(areaA+areaB-interArea))
}
