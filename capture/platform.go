package capture

import "time"

// The interfaces below mirror the desktop duplication resource chain:
// factory -> adapter -> device (+ immediate context) -> output -> duplication.
// Implementations classify failures with ErrWaitTimeout, ErrAccessLost and
// ErrDeviceLost; any other error is treated as transient.

type Releaser interface {
	Release() error
}

type Platform interface {
	CreateFactory() (Factory, error)
}

type Factory interface {
	Releaser
	EnumAdapter(index int) (Adapter, error)
}

type Adapter interface {
	Releaser
	CreateDevice() (Device, DeviceContext, error)
	EnumOutput(index int) (Output, error)
}

type Device interface {
	Releaser
	CreateStagingTexture(desc TextureDesc) (Texture, error)
}

type DeviceContext interface {
	Releaser
	CopyResource(dst, src Texture)
	Map(t Texture) (MappedSurface, error)
	Unmap(t Texture)
}

type Output interface {
	Releaser
	Duplicate(dev Device) (Duplication, error)
}

type Duplication interface {
	Releaser
	// AcquireNextFrame waits up to timeout for a new frame. On success the
	// frame stays held until ReleaseFrame.
	AcquireNextFrame(timeout time.Duration) (FrameResource, error)
	ReleaseFrame() error
}

// FrameResource is the acquired frame handle; Texture resolves the GPU image behind it.
type FrameResource interface {
	Releaser
	Texture() (Texture, error)
}

type Texture interface {
	Releaser
	Desc() TextureDesc
}

type TextureDesc struct {
	Width  int
	Height int
}

// MappedSurface is CPU-readable pixel memory whose rows are RowPitch bytes apart.
type MappedSurface struct {
	Data     []byte
	RowPitch int
}
