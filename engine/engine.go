package engine

import (
	"errors"
	"fmt"
	"image"

	iface "ScreenDetAgent/interface"
	"ScreenDetAgent/logger"
	"ScreenDetAgent/yolo"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

// ModelLoadError is fatal at startup: without a model there is nothing to detect with.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// Detector owns the compiled network, its output layer names and the class
// table. None of them change after LoadModel.
type Detector struct {
	ModelPath string
	Names     yolo.ClassNames
	Params    yolo.Params
	Backend   BackendChoice
	State     int

	net      gocv.Net
	outNames []string
}

func NewDetector() *Detector {
	return &Detector{Params: yolo.DefaultParams, State: REGISTERED}
}

func (d *Detector) LoadModel(modelPath, namesPath string, params yolo.Params, backend BackendChoice) error {
	names, err := yolo.LoadClassNames(namesPath)
	if err != nil {
		return &ModelLoadError{Path: namesPath, Err: err}
	}
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		_ = net.Close()
		return &ModelLoadError{Path: modelPath, Err: errors.New("network is empty")}
	}
	net.SetPreferableBackend(backend.Backend)
	net.SetPreferableTarget(backend.Target)

	d.net = net
	d.outNames = outputLayerNames(&net)
	d.ModelPath = modelPath
	d.Names = names
	d.Params = params
	d.Backend = backend
	d.State = IDLE
	logger.Log().Info("model loaded",
		zap.String("model", modelPath),
		zap.Int("classes", len(names)),
		zap.String("backend", backend.Name),
		zap.Strings("outputs", d.outNames))
	return nil
}

func outputLayerNames(net *gocv.Net) []string {
	var names []string
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		name := layer.GetName()
		_ = layer.Close()
		if name == "_input" {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{
		ModelPath: d.ModelPath,
		Conf:      d.Params.ConfThreshold,
		Iou:       d.Params.NMSThreshold,
		InputSize: d.Params.InputWidth,
		UseGPU:    d.Backend.GPU,
		Backend:   d.Backend.Name,
	}
}

// Detect runs one forward pass over a BGR frame. Any failure, including an
// empty frame or an unloaded model, yields an empty set.
func (d *Detector) Detect(frame gocv.Mat) (dets iface.DetectionSet) {
	if d.State != IDLE || frame.Empty() {
		return iface.DetectionSet{}
	}
	d.State = BUSY
	defer func() {
		d.State = IDLE
		if r := recover(); r != nil {
			logger.Log().Error("detect panicked", zap.Any("recover", r))
			dets = iface.DetectionSet{}
		}
	}()

	blob := gocv.BlobFromImage(frame, 1.0/255.0,
		image.Pt(d.Params.InputWidth, d.Params.InputHeight),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	outs := d.net.ForwardLayers(d.outNames)
	defer func() {
		for i := range outs {
			_ = outs[i].Close()
		}
	}()
	if len(outs) == 0 {
		return iface.DetectionSet{}
	}
	return d.postprocess(outs[0], frame.Cols(), frame.Rows())
}

// postprocess decodes the first output blob, a float32 tensor shaped
// [1, 4+classes, proposals].
func (d *Detector) postprocess(out gocv.Mat, frameW, frameH int) iface.DetectionSet {
	if out.Empty() {
		return iface.DetectionSet{}
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		logger.Log().Warn("unexpected output tensor", zap.Error(err))
		return iface.DetectionSet{}
	}
	return yolo.Postprocess(data, out.Size(), frameW, frameH, d.Names, d.Params)
}

// Warmup pushes n blank frames through the network so GPU kernels are
// compiled before the first real frame.
func (d *Detector) Warmup(n int) {
	if n <= 0 || d.State != IDLE {
		return
	}
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), d.Params.InputHeight, d.Params.InputWidth, gocv.MatTypeCV8UC3)
	defer blank.Close()
	for i := 0; i < n; i++ {
		d.Detect(blank)
	}
	logger.Log().Info("warm-up finished", zap.Int("passes", n))
}

func (d *Detector) Destroy() {
	if d.State != UNREGISTERED && d.State != REGISTERED {
		_ = d.net.Close()
	}
	d.outNames = nil
	d.ModelPath = ""
	d.Names = nil
	d.State = UNREGISTERED
}
