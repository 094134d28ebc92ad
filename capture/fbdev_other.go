//go:build !linux

package capture

import (
	"errors"
	"runtime"
)

type unsupportedPlatform struct{}

// NewPlatform returns a platform whose factory always fails; desktop capture
// is only implemented for the Linux framebuffer.
func NewPlatform() Platform {
	return unsupportedPlatform{}
}

func (unsupportedPlatform) CreateFactory() (Factory, error) {
	return nil, errors.New("desktop capture is not supported on " + runtime.GOOS)
}
