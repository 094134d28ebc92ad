package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ScreenDetAgent/capture"
	iface "ScreenDetAgent/interface"
	"ScreenDetAgent/yolo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestDetector_All(t *testing.T) {
	d := NewDetector()

	t.Run("Test Detect before load", func(t *testing.T) {
		img := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
		defer img.Close()
		assert.Empty(t, d.Detect(img))
		assert.Equal(t, REGISTERED, d.State)
	})

	t.Run("Test LoadModel missing names", func(t *testing.T) {
		err := d.LoadModel("model/yolo11l.onnx", filepath.Join(t.TempDir(), "missing.names"), yolo.DefaultParams, backendCPU)
		var mle *ModelLoadError
		require.ErrorAs(t, err, &mle)
		assert.Equal(t, REGISTERED, d.State)
	})

	t.Run("Test Detect empty frame", func(t *testing.T) {
		d.State = IDLE
		defer func() { d.State = REGISTERED }()
		empty := gocv.NewMat()
		defer empty.Close()
		assert.Empty(t, d.Detect(empty))
	})

	t.Run("Test CheckConfig", func(t *testing.T) {
		d.Backend = backendCPU
		config := d.CheckConfig()
		assert.Equal(t, float32(0.5), config.Conf)
		assert.Equal(t, float32(0.4), config.Iou)
		assert.Equal(t, 640, config.InputSize)
		assert.Equal(t, false, config.UseGPU)
		assert.Equal(t, "cpu", config.Backend)
	})

	t.Run("Test Destroy", func(t *testing.T) {
		d.Destroy()
		assert.Equal(t, "", d.ModelPath)
		assert.Nil(t, d.Names)
		assert.Equal(t, UNREGISTERED, d.State)
	})
}

func TestSelectBackend(t *testing.T) {
	cases := []struct {
		pref string
		hw   HardwareInfo
		want string
	}{
		{"auto", HardwareInfo{HasCUDA: true}, "cuda"},
		{"auto", HardwareInfo{HasOpenCL: true}, "cpu"},
		{"", HardwareInfo{}, "cpu"},
		{"cuda", HardwareInfo{}, "cpu"},
		{"OpenCL", HardwareInfo{HasOpenCL: true}, "opencl"},
		{"opencl", HardwareInfo{}, "cpu"},
		{"cpu", HardwareInfo{HasCUDA: true}, "cpu"},
	}
	for _, tc := range cases {
		t.Run(tc.pref+"->"+tc.want, func(t *testing.T) {
			got, err := SelectBackend(tc.pref, tc.hw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Name)
		})
	}

	_, err := SelectBackend("tpu", HardwareInfo{})
	assert.Error(t, err)
}

func TestProbeHardware(t *testing.T) {
	noCUDA := func() int { return 0 }
	oneGPU := func() int { return 1 }
	root := t.TempDir()
	assert.Equal(t, HardwareInfo{}, probeHardwareAt(root, oneGPU))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "proc/driver/nvidia"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proc/driver/nvidia/version"), []byte("NVRM"), 0o644))
	dev := filepath.Join(root, "sys/class/drm/renderD128/device")
	require.NoError(t, os.MkdirAll(dev, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dev, "vendor"), []byte("0x8086\n"), 0o644))
	require.NoError(t, os.Symlink("../../bus/pci/drivers/i915", filepath.Join(dev, "driver")))

	hw := probeHardwareAt(root, noCUDA)
	assert.False(t, hw.HasCUDA, "driver without a cuda build of opencv")
	assert.True(t, hw.HasNVIDIA)
	choice, err := SelectBackend("auto", hw)
	require.NoError(t, err)
	assert.Equal(t, "cpu", choice.Name)
	assert.False(t, choice.GPU)

	hw = probeHardwareAt(root, oneGPU)
	assert.True(t, hw.HasCUDA)
	assert.True(t, hw.HasNVIDIA)
	assert.True(t, hw.HasOpenCL)
	assert.True(t, hw.HasIntel)
	assert.Equal(t, "Intel", hw.GPUVendor)
	assert.Equal(t, "i915", hw.Driver)
}

func TestPrepareKernelCache(t *testing.T) {
	t.Setenv(KernelCacheEnv, "")
	dir := filepath.Join(t.TempDir(), "kernel_cache")
	require.NoError(t, PrepareKernelCache(dir))
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.ToSlash(dir), os.Getenv(KernelCacheEnv))
}

func TestAnnotate(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()
	Annotate(&img, iface.DetectionSet{{ClassID: 0, Label: "person", Conf: 0.9, Box: iface.Box{Left: 10, Top: 50, Width: 30, Height: 40}}})

	px := img.GetVecbAt(50, 25)
	assert.Equal(t, []uint8{0, 255, 0}, []uint8(px))
	assert.Equal(t, []uint8{0, 0, 0}, []uint8(img.GetVecbAt(70, 25)))
}

func TestSnapshotter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	s := NewSnapshotter(dir, 5*time.Second)
	img := gocv.NewMatWithSize(16, 16, gocv.MatTypeCV8UC3)
	defer img.Close()

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	path, err := s.Write(img, t0)
	require.NoError(t, err)
	assert.FileExists(t, path)

	path, err = s.Write(img, t0.Add(4*time.Second))
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = s.Write(img, t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPostprocessOutputTensor(t *testing.T) {
	const channels, proposals = 84, 8400
	out := gocv.NewMatWithSizes([]int{1, channels, proposals}, gocv.MatTypeCV32F)
	defer out.Close()
	data, err := out.DataPtrFloat32()
	require.NoError(t, err)
	require.Len(t, data, channels*proposals)
	for i := range data {
		data[i] = 0
	}
	const idx = 4242
	for c, v := range []float32{320, 320, 100, 50} {
		data[c*proposals+idx] = v
	}
	data[(4+17)*proposals+idx] = 0.91

	d := NewDetector()
	d.Names = make(yolo.ClassNames, channels-4)
	d.Names[17] = "horse"
	assert.Equal(t, []int{1, channels, proposals}, out.Size())

	dets := d.postprocess(out, 1280, 720)
	require.Len(t, dets, 1)
	assert.Equal(t, 17, dets[0].ClassID)
	assert.Equal(t, "horse", dets[0].Label)
	assert.InDelta(t, 0.91, dets[0].Conf, 1e-6)
	assert.Equal(t, iface.Box{Left: 540, Top: 331, Width: 200, Height: 56}, dets[0].Box)

	empty := gocv.NewMat()
	defer empty.Close()
	assert.Empty(t, d.postprocess(empty, 1280, 720))

	wrongType := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC1)
	defer wrongType.Close()
	assert.Empty(t, d.postprocess(wrongType, 1280, 720))
}

func TestProcessorWithoutModel(t *testing.T) {
	dir := t.TempDir()
	p := NewProcessor(NewDetector(), nil, NewSnapshotter(dir, time.Second))
	defer p.Close()

	buf := &capture.PixelBuffer{}
	buf.Resize(32, 24)
	dets, quit := p.HandleFrame(buf)
	assert.Empty(t, dets)
	assert.False(t, quit)
	assert.Equal(t, 32, p.bgr.Cols())
	assert.Equal(t, 3, p.bgr.Channels())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	dets, quit = p.HandleFrame(&capture.PixelBuffer{})
	assert.Empty(t, dets)
	assert.False(t, quit)
}
