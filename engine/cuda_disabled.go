//go:build !cuda

package engine

// cudaDeviceCount is zero unless built with -tags cuda: a stock OpenCV has
// no CUDA dnn backend even when the NVIDIA driver is installed.
func cudaDeviceCount() int {
	return 0
}
