package engine

import "gocv.io/x/gocv"

const keyEsc = 27

// Presenter shows an annotated frame and reports whether the user asked to quit.
type Presenter interface {
	Present(img gocv.Mat) (quit bool)
	Close() error
}

type Window struct {
	win *gocv.Window
}

func NewWindow(name string, width, height int) *Window {
	w := gocv.NewWindow(name)
	w.SetWindowProperty(gocv.WindowPropertyAspectRatio, gocv.WindowKeepRatio)
	if width > 0 && height > 0 {
		w.ResizeWindow(width, height)
	}
	return &Window{win: w}
}

// Present quits on ESC or when the window has been closed.
func (w *Window) Present(img gocv.Mat) bool {
	if w.win.GetWindowProperty(gocv.WindowPropertyVisible) < 1 {
		return true
	}
	w.win.IMShow(img)
	if w.win.WaitKey(1) == keyEsc {
		return true
	}
	return w.win.GetWindowProperty(gocv.WindowPropertyVisible) < 1
}

func (w *Window) Close() error {
	return w.win.Close()
}

// Headless discards frames; used when no display is configured.
type Headless struct{}

func (Headless) Present(gocv.Mat) bool { return false }
func (Headless) Close() error          { return nil }
