package engine

import (
	"time"

	"ScreenDetAgent/capture"
	iface "ScreenDetAgent/interface"
	"ScreenDetAgent/logger"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Processor turns one captured BGRA buffer into detections, draws them and
// hands the frame to the presenter and the optional snapshot writer.
type Processor struct {
	detector  *Detector
	presenter Presenter
	snapshots *Snapshotter
	now       func() time.Time

	bgr gocv.Mat
}

func NewProcessor(det *Detector, presenter Presenter, snapshots *Snapshotter) *Processor {
	if presenter == nil {
		presenter = Headless{}
	}
	return &Processor{
		detector:  det,
		presenter: presenter,
		snapshots: snapshots,
		now:       time.Now,
		bgr:       gocv.NewMat(),
	}
}

// HandleFrame must finish with buf before the next acquisition; the BGR copy
// it works on is owned by the processor.
func (p *Processor) HandleFrame(buf *capture.PixelBuffer) (iface.DetectionSet, bool) {
	if buf == nil || buf.Width == 0 || buf.Height == 0 {
		return iface.DetectionSet{}, false
	}
	src, err := gocv.NewMatFromBytes(buf.Height, buf.Width, gocv.MatTypeCV8UC4, buf.Pix)
	if err != nil {
		logger.Log().Warn("wrap frame failed", zap.Error(err))
		return iface.DetectionSet{}, false
	}
	gocv.CvtColor(src, &p.bgr, gocv.ColorBGRAToBGR)
	_ = src.Close()

	dets := p.detector.Detect(p.bgr)
	Annotate(&p.bgr, dets)

	if p.snapshots != nil {
		if path, err := p.snapshots.Write(p.bgr, p.now()); err != nil {
			logger.Log().Warn("snapshot failed", zap.Error(err))
		} else if path != "" {
			logger.Log().Info("snapshot saved", zap.String("path", path))
		}
	}
	return dets, p.presenter.Present(p.bgr)
}

func (p *Processor) Close() error {
	return multierr.Append(p.bgr.Close(), p.presenter.Close())
}
