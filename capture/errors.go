package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrWaitTimeout means no new frame arrived within the wait. It is a normal, empty result.
	ErrWaitTimeout = errors.New("capture: wait timeout")
	// ErrAccessLost means the capture session was invalidated externally (mode change, session switch).
	ErrAccessLost = errors.New("capture: access lost")
	// ErrDeviceLost means the graphics device was removed or reset.
	ErrDeviceLost = errors.New("capture: device lost")
	// ErrNotReady is returned when acquiring without an initialized session.
	ErrNotReady = errors.New("capture: session not initialized")
)

// Stage names one link of the resource chain.
type Stage string

const (
	StageFactory     Stage = "factory"
	StageAdapter     Stage = "adapter"
	StageDevice      Stage = "device"
	StageOutput      Stage = "output"
	StageDuplication Stage = "duplication"
)

// InitError reports which stage of session setup failed. Nothing is held
// when it is returned.
type InitError struct {
	Stage Stage
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("capture init failed at %s: %v", e.Stage, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// FatalError is surfaced once a per-frame step has used up its retries.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("capture retries exhausted: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsLost reports access-lost and device-lost alike; both force re-initialization.
func IsLost(err error) bool {
	return errors.Is(err, ErrAccessLost) || errors.Is(err, ErrDeviceLost)
}
