package camera

import (
	"errors"
	"time"

	"ScreenDetAgent/capture"
	"ScreenDetAgent/retry"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

var errReadFailed = errors.New("camera read returned no frame")

// Opener opens a local camera as a capture source. Frames are converted to
// BGRA so they share the desktop buffer layout.
type Opener struct {
	DeviceID int
	FPS      int
	Policy   retry.Policy

	buf *capture.PixelBuffer
}

func NewOpener(deviceID, fps int, buf *capture.PixelBuffer) *Opener {
	if buf == nil {
		buf = &capture.PixelBuffer{}
	}
	return &Opener{DeviceID: deviceID, FPS: fps, Policy: retry.DefaultPolicy, buf: buf}
}

func (o *Opener) Open() (capture.Grabber, error) {
	vc, err := gocv.OpenVideoCapture(o.DeviceID)
	if err != nil {
		if vc != nil {
			_ = vc.Close()
		}
		return nil, &capture.InitError{Stage: capture.StageDevice, Err: err}
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, &capture.InitError{Stage: capture.StageDevice, Err: errors.New("camera did not open")}
	}
	if o.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(o.FPS))
	}
	return &source{
		vc:     vc,
		frame:  gocv.NewMat(),
		bgra:   gocv.NewMat(),
		buf:    o.buf,
		policy: o.Policy,
	}, nil
}

type source struct {
	vc     *gocv.VideoCapture
	frame  gocv.Mat
	bgra   gocv.Mat
	buf    *capture.PixelBuffer
	policy retry.Policy
}

// Grab blocks on the device; the timeout is not applied to cameras.
func (s *source) Grab(time.Duration) capture.Outcome {
	err := retry.Do(s.policy, func(int) error {
		if ok := s.vc.Read(&s.frame); !ok || s.frame.Empty() {
			return errReadFailed
		}
		return nil
	})
	if err != nil {
		return capture.Outcome{Kind: capture.OutcomeFatal, Err: &capture.FatalError{Err: err}}
	}
	gocv.CvtColor(s.frame, &s.bgra, gocv.ColorBGRToBGRA)
	s.buf.Resize(s.bgra.Cols(), s.bgra.Rows())
	copy(s.buf.Pix, s.bgra.ToBytes())
	return capture.Outcome{Kind: capture.OutcomeFrame, Buffer: s.buf}
}

func (s *source) Close() error {
	return multierr.Combine(s.frame.Close(), s.bgra.Close(), s.vc.Close())
}
