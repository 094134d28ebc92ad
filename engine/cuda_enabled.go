//go:build cuda

package engine

import "gocv.io/x/gocv/cuda"

// cudaDeviceCount reports the CUDA devices OpenCV itself can use. Building
// with -tags cuda requires an OpenCV built with the CUDA modules.
func cudaDeviceCount() int {
	return cuda.GetCudaEnabledDeviceCount()
}
