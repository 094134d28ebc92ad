package yolo

import (
	"fmt"

	iface "ScreenDetAgent/interface"
)

// Params are the fixed model constants.
type Params struct {
	InputWidth    int
	InputHeight   int
	ConfThreshold float32
	NMSThreshold  float32
}

var DefaultParams = Params{
	InputWidth:    640,
	InputHeight:   640,
	ConfThreshold: 0.5,
	NMSThreshold:  0.4,
}

// Candidate is a proposal that passed the confidence threshold, already in
// frame coordinates.
type Candidate struct {
	ClassID int
	Score   float32
	Box     iface.Box
}

// Decode reads a [1, 4+numClasses, numProposals] tensor stored row-major:
// rows 0..3 hold cx, cy, w, h and the remaining rows hold class scores.
// Boxes are scaled to the frame with independent x and y factors and
// truncated, so a non-square frame yields stretched geometry.
func Decode(data []float32, channels, proposals, frameW, frameH int, p Params) ([]Candidate, error) {
	if channels < 5 {
		return nil, fmt.Errorf("tensor has %d channels, need at least 5", channels)
	}
	if proposals < 0 || len(data) < channels*proposals {
		return nil, fmt.Errorf("tensor holds %d values, need %d", len(data), channels*proposals)
	}
	if p.InputWidth <= 0 || p.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", p.InputWidth, p.InputHeight)
	}
	xFactor := float32(frameW) / float32(p.InputWidth)
	yFactor := float32(frameH) / float32(p.InputHeight)

	var out []Candidate
	for i := 0; i < proposals; i++ {
		classID := 0
		best := data[4*proposals+i]
		for c := 5; c < channels; c++ {
			if v := data[c*proposals+i]; v > best {
				best = v
				classID = c - 4
			}
		}
		if best <= p.ConfThreshold {
			continue
		}
		cx := data[i]
		cy := data[proposals+i]
		w := data[2*proposals+i]
		h := data[3*proposals+i]
		out = append(out, Candidate{
			ClassID: classID,
			Score:   best,
			Box: iface.Box{
				Left:   int((cx - 0.5*w) * xFactor),
				Top:    int((cy - 0.5*h) * yFactor),
				Width:  int(w * xFactor),
				Height: int(h * yFactor),
			},
		})
	}
	return out, nil
}

// Postprocess turns a raw output tensor into the final detection set. shape
// is the tensor shape as reported by the network. Malformed input yields an
// empty set rather than an error.
func Postprocess(data []float32, shape []int, frameW, frameH int, names ClassNames, p Params) iface.DetectionSet {
	if len(shape) != 3 || shape[0] != 1 {
		return iface.DetectionSet{}
	}
	cands, err := Decode(data, shape[1], shape[2], frameW, frameH, p)
	if err != nil || len(cands) == 0 {
		return iface.DetectionSet{}
	}
	boxes := make([]iface.Box, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.Box
		scores[i] = c.Score
	}
	keep := NMS(boxes, scores, p.ConfThreshold, p.NMSThreshold)
	dets := make(iface.DetectionSet, 0, len(keep))
	for _, idx := range keep {
		c := cands[idx]
		dets = append(dets, iface.Detection{
			ClassID: c.ClassID,
			Label:   names.Resolve(c.ClassID),
			Conf:    c.Score,
			Box:     c.Box,
		})
	}
	return dets
}
