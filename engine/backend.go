package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ScreenDetAgent/logger"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const KernelCacheEnv = "OPENCV_OCL4DNN_CONFIG_PATH"

// HardwareInfo summarizes the accelerators found at startup.
type HardwareInfo struct {
	HasCUDA   bool
	HasOpenCL bool
	HasNVIDIA bool
	HasAMD    bool
	HasIntel  bool
	Driver    string
	GPUVendor string
}

var pciVendors = map[string]string{
	"0x10de": "NVIDIA",
	"0x1002": "AMD",
	"0x8086": "Intel",
}

// ProbeHardware inspects the host once. It is never called per frame.
// HasCUDA needs both the NVIDIA driver and an OpenCV that reports CUDA
// devices.
func ProbeHardware() HardwareInfo {
	return probeHardwareAt("/", cudaDeviceCount)
}

func probeHardwareAt(root string, cudaDevices func() int) HardwareInfo {
	var hw HardwareInfo
	if _, err := os.Stat(filepath.Join(root, "proc/driver/nvidia/version")); err == nil {
		hw.HasNVIDIA = true
		hw.HasCUDA = cudaDevices() > 0
		if !hw.HasCUDA {
			logger.Log().Info("nvidia driver found but opencv reports no cuda devices")
		}
	}
	nodes, _ := filepath.Glob(filepath.Join(root, "sys/class/drm/renderD*"))
	if len(nodes) > 0 {
		hw.HasOpenCL = true
		b, err := os.ReadFile(filepath.Join(nodes[0], "device/vendor"))
		if err == nil {
			id := strings.ToLower(strings.TrimSpace(string(b)))
			hw.GPUVendor = pciVendors[id]
		}
		if link, err := os.Readlink(filepath.Join(nodes[0], "device/driver")); err == nil {
			hw.Driver = filepath.Base(link)
		}
		switch hw.GPUVendor {
		case "AMD":
			hw.HasAMD = true
		case "Intel":
			hw.HasIntel = true
		case "NVIDIA":
			hw.HasNVIDIA = true
		}
	}
	return hw
}

type BackendChoice struct {
	Name    string
	Backend gocv.NetBackendType
	Target  gocv.NetTargetType
	GPU     bool
}

var (
	backendCUDA   = BackendChoice{Name: "cuda", Backend: gocv.NetBackendCUDA, Target: gocv.NetTargetCUDA, GPU: true}
	backendOpenCL = BackendChoice{Name: "opencl", Backend: gocv.NetBackendOpenCV, Target: gocv.NetTargetFP32, GPU: true}
	backendCPU    = BackendChoice{Name: "cpu", Backend: gocv.NetBackendOpenCV, Target: gocv.NetTargetCPU}
)

// SelectBackend maps a preference ("auto", "cuda", "opencl", "cpu") onto
// what the hardware offers. "auto" prefers CUDA and otherwise runs on CPU.
func SelectBackend(pref string, hw HardwareInfo) (BackendChoice, error) {
	switch strings.ToLower(pref) {
	case "", "auto":
		if hw.HasCUDA {
			return backendCUDA, nil
		}
		return backendCPU, nil
	case "cuda":
		if !hw.HasCUDA {
			logger.Log().Warn("cuda requested but not available, using cpu")
			return backendCPU, nil
		}
		return backendCUDA, nil
	case "opencl":
		if !hw.HasOpenCL {
			logger.Log().Warn("opencl requested but not available, using cpu")
			return backendCPU, nil
		}
		return backendOpenCL, nil
	case "cpu":
		return backendCPU, nil
	default:
		return BackendChoice{}, fmt.Errorf("unknown backend %q", pref)
	}
}

// PrepareKernelCache creates dir and points the OpenCL kernel cache at it.
func PrepareKernelCache(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("create kernel cache: %w", err)
	}
	if err := os.Setenv(KernelCacheEnv, filepath.ToSlash(abs)); err != nil {
		return fmt.Errorf("set %s: %w", KernelCacheEnv, err)
	}
	logger.Log().Debug("kernel cache ready", zap.String("dir", abs))
	return nil
}
