//go:build linux

package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	defaultSysfsRoot = "/sys/class/graphics"
	defaultDevRoot   = "/dev"
)

// FBDevPlatform captures the Linux framebuffer. Adapters are fbN entries of
// the graphics class, the single output of each is its current mode, and
// the duplication is a read-only mapping of the device memory.
type FBDevPlatform struct {
	SysfsRoot string
	DevRoot   string
}

func NewPlatform() Platform {
	return &FBDevPlatform{SysfsRoot: defaultSysfsRoot, DevRoot: defaultDevRoot}
}

func (p *FBDevPlatform) CreateFactory() (Factory, error) {
	entries, err := os.ReadDir(p.SysfsRoot)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "fb") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no framebuffer under %s", p.SysfsRoot)
	}
	sort.Strings(names)
	return &fbFactory{p: p, names: names}, nil
}

type fbFactory struct {
	p     *FBDevPlatform
	names []string
}

func (f *fbFactory) Release() error { return nil }

func (f *fbFactory) EnumAdapter(index int) (Adapter, error) {
	if index < 0 || index >= len(f.names) {
		return nil, fmt.Errorf("adapter %d not found (%d available)", index, len(f.names))
	}
	name := f.names[index]
	return &fbAdapter{
		name:    name,
		sysDir:  filepath.Join(f.p.SysfsRoot, name),
		devPath: filepath.Join(f.p.DevRoot, name),
	}, nil
}

type fbAdapter struct {
	name    string
	sysDir  string
	devPath string
}

func (a *fbAdapter) Release() error { return nil }

func (a *fbAdapter) CreateDevice() (Device, DeviceContext, error) {
	f, err := os.OpenFile(a.devPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, nil, classifyDevErr(err)
	}
	return &fbDevice{file: f}, fbContext{}, nil
}

func (a *fbAdapter) EnumOutput(index int) (Output, error) {
	if index != 0 {
		return nil, fmt.Errorf("%s has a single output, got index %d", a.name, index)
	}
	geom, err := readGeometry(a.sysDir)
	if err != nil {
		return nil, err
	}
	return &fbOutput{sysDir: a.sysDir, geom: geom}, nil
}

// fbGeometry is the mapped virtual screen plus the visible mode inside it.
// Double-buffered drivers make the virtual screen taller than the mode.
type fbGeometry struct {
	Width, Height               int
	VisibleWidth, VisibleHeight int
	Stride                      int
	BitsPerPixel                int
}

func readGeometry(dir string) (fbGeometry, error) {
	var g fbGeometry
	size, err := readSysfs(dir, "virtual_size")
	if err != nil {
		return g, err
	}
	w, h, ok := strings.Cut(size, ",")
	if !ok {
		return g, fmt.Errorf("malformed virtual_size %q", size)
	}
	if g.Width, err = strconv.Atoi(w); err != nil {
		return g, fmt.Errorf("virtual_size width: %w", err)
	}
	if g.Height, err = strconv.Atoi(h); err != nil {
		return g, fmt.Errorf("virtual_size height: %w", err)
	}
	if g.Stride, err = readSysfsInt(dir, "stride"); err != nil {
		return g, err
	}
	if g.BitsPerPixel, err = readSysfsInt(dir, "bits_per_pixel"); err != nil {
		return g, err
	}
	if g.BitsPerPixel != BytesPerPixel*8 {
		return g, fmt.Errorf("unsupported pixel depth %d bpp", g.BitsPerPixel)
	}
	if g.Stride < g.Width*BytesPerPixel {
		return g, fmt.Errorf("stride %d shorter than row of %d pixels", g.Stride, g.Width)
	}
	g.VisibleWidth, g.VisibleHeight = g.Width, g.Height
	if w, h, ok := readMode(dir); ok && w <= g.Width && h <= g.Height {
		g.VisibleWidth, g.VisibleHeight = w, h
	}
	return g, nil
}

// readMode parses the first entry of "modes", e.g. "U:1920x1080p-60".
func readMode(dir string) (w, h int, ok bool) {
	modes, err := readSysfs(dir, "modes")
	if err != nil || modes == "" {
		return 0, 0, false
	}
	mode, _, _ := strings.Cut(modes, "\n")
	if _, rest, found := strings.Cut(mode, ":"); found {
		mode = rest
	}
	ws, rest, found := strings.Cut(mode, "x")
	if !found {
		return 0, 0, false
	}
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(rest[:end])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// readPan returns the visible origin inside the virtual screen. Drivers
// without panning have no pan attribute.
func readPan(dir string) (x, y int, err error) {
	pan, err := readSysfs(dir, "pan")
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	xs, ys, ok := strings.Cut(pan, ",")
	if !ok {
		return 0, 0, fmt.Errorf("malformed pan %q", pan)
	}
	if x, err = strconv.Atoi(xs); err != nil {
		return 0, 0, fmt.Errorf("pan x: %w", err)
	}
	if y, err = strconv.Atoi(ys); err != nil {
		return 0, 0, fmt.Errorf("pan y: %w", err)
	}
	return x, y, nil
}

func readSysfs(dir, name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readSysfsInt(dir, name string) (int, error) {
	s, err := readSysfs(dir, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func classifyDevErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.ENXIO) {
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	return err
}

type fbDevice struct {
	file    *os.File
	staging []byte
}

func (d *fbDevice) Release() error {
	return d.file.Close()
}

// CreateStagingTexture hands out the device's reusable staging memory.
func (d *fbDevice) CreateStagingTexture(desc TextureDesc) (Texture, error) {
	return &fbTexture{desc: desc, owner: d}, nil
}

type fbContext struct{}

func (fbContext) Release() error { return nil }

func (fbContext) CopyResource(dst, src Texture) {
	d, ok := dst.(*fbTexture)
	s, ok2 := src.(*fbTexture)
	if !ok || !ok2 || d.owner == nil {
		return
	}
	d.owner.staging = append(d.owner.staging[:0], s.mem...)
	d.mem = d.owner.staging
	d.stride = s.stride
}

func (fbContext) Map(t Texture) (MappedSurface, error) {
	ft, ok := t.(*fbTexture)
	if !ok || ft.mem == nil {
		return MappedSurface{}, errors.New("texture holds no copied image")
	}
	return MappedSurface{Data: ft.mem, RowPitch: ft.stride}, nil
}

func (fbContext) Unmap(Texture) {}

type fbTexture struct {
	desc   TextureDesc
	mem    []byte
	stride int
	owner  *fbDevice
}

func (t *fbTexture) Release() error {
	t.mem = nil
	return nil
}

func (t *fbTexture) Desc() TextureDesc { return t.desc }

type fbOutput struct {
	sysDir string
	geom   fbGeometry
}

func (o *fbOutput) Release() error { return nil }

func (o *fbOutput) Duplicate(dev Device) (Duplication, error) {
	d, ok := dev.(*fbDevice)
	if !ok {
		return nil, fmt.Errorf("device %T does not belong to the framebuffer platform", dev)
	}
	size := o.geom.Stride * o.geom.Height
	mem, err := unix.Mmap(int(d.file.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, classifyDevErr(err))
	}
	return &fbDuplication{mem: mem, sysDir: o.sysDir, geom: o.geom}, nil
}

// fbDuplication has no damage notifications, so every acquire returns the
// current contents and never waits.
type fbDuplication struct {
	mem    []byte
	sysDir string
	geom   fbGeometry
	held   bool
}

func (d *fbDuplication) Release() error {
	if d.mem == nil {
		return nil
	}
	err := unix.Munmap(d.mem)
	d.mem = nil
	return err
}

func (d *fbDuplication) AcquireNextFrame(time.Duration) (FrameResource, error) {
	if d.held {
		return nil, errors.New("previous frame not released")
	}
	cur, err := readGeometry(d.sysDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrDeviceLost, err)
		}
		return nil, err
	}
	if cur != d.geom {
		return nil, fmt.Errorf("%w: mode changed from %dx%d to %dx%d",
			ErrAccessLost, d.geom.VisibleWidth, d.geom.VisibleHeight, cur.VisibleWidth, cur.VisibleHeight)
	}
	x, y, err := readPan(d.sysDir)
	if err != nil {
		return nil, err
	}
	g := d.geom
	off := y*g.Stride + x*BytesPerPixel
	if x < 0 || y < 0 || off+(g.VisibleHeight-1)*g.Stride+g.VisibleWidth*BytesPerPixel > len(d.mem) {
		return nil, fmt.Errorf("pan %d,%d puts the %dx%d mode outside the mapped screen", x, y, g.VisibleWidth, g.VisibleHeight)
	}
	d.held = true
	return fbFrame{tex: &fbTexture{
		desc:   TextureDesc{Width: g.VisibleWidth, Height: g.VisibleHeight},
		mem:    d.mem[off:],
		stride: g.Stride,
	}}, nil
}

func (d *fbDuplication) ReleaseFrame() error {
	d.held = false
	return nil
}

type fbFrame struct {
	tex *fbTexture
}

func (f fbFrame) Release() error { return nil }

func (f fbFrame) Texture() (Texture, error) {
	return f.tex, nil
}
