package engine

import (
	"image"
	"image/color"

	iface "ScreenDetAgent/interface"

	"gocv.io/x/gocv"
)

var boxColor = color.RGBA{G: 255}

// Annotate draws each detection's box and caption onto img.
func Annotate(img *gocv.Mat, dets iface.DetectionSet) {
	for _, d := range dets {
		gocv.Rectangle(img, d.Box.Rect(), boxColor, 2)
		gocv.PutText(img, d.Caption(), image.Pt(d.Box.Left, d.Box.Top-10),
			gocv.FontHersheySimplex, 0.7, boxColor, 2)
	}
}
