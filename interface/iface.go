package iface

import (
	"fmt"
	"image"
)

type Position struct {
	X, Y float32
}

// Box is a detection rectangle in frame pixel coordinates. It is not clipped,
// so it may extend outside the frame bounds.
type Box struct {
	Left   int
	Top    int
	Width  int
	Height int
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Left+b.Width, b.Top+b.Height)
}

func (b Box) Center() Position {
	return Position{
		X: float32(b.Left) + float32(b.Width)/2,
		Y: float32(b.Top) + float32(b.Height)/2,
	}
}

func (b Box) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

type Detection struct {
	ClassID int
	Label   string
	Conf    float32
	Box     Box
}

// Caption is the text drawn next to the box.
func (d Detection) Caption() string {
	return fmt.Sprintf("%s: %.2f", d.Label, d.Conf)
}

// DetectionSet keeps suppression order, it is not sorted by score.
type DetectionSet []Detection

type EngineConfig struct {
	ModelPath string
	NamesPath string
	Conf      float32
	Iou       float32
	InputSize int
	UseGPU    bool
	Backend   string
}
