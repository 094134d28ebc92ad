package capture

import (
	"errors"
	"fmt"
	"time"
)

// fakePlatform records every acquire and release so tests can check
// ordering and that nothing leaks.
type fakePlatform struct {
	failAt    Stage
	failErr   error
	releases  []string
	live      map[string]int
	width     int
	height    int
	rowPitch  int
	frames    []error // scripted AcquireNextFrame results, nil means a frame
	mapErrs   []error // scripted Map results
	stagingOK bool
	acquires  int
}

func newFakePlatform(w, h, pitch int) *fakePlatform {
	return &fakePlatform{width: w, height: h, rowPitch: pitch, live: map[string]int{}, stagingOK: true}
}

func (p *fakePlatform) hold(name string)    { p.live[name]++ }
func (p *fakePlatform) release(name string) { p.live[name]--; p.releases = append(p.releases, name) }

func (p *fakePlatform) leaked() map[string]int {
	out := map[string]int{}
	for k, v := range p.live {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

func (p *fakePlatform) stageErr(s Stage) error {
	if p.failAt == s {
		if p.failErr != nil {
			return p.failErr
		}
		return fmt.Errorf("%s unavailable", s)
	}
	return nil
}

func (p *fakePlatform) CreateFactory() (Factory, error) {
	if err := p.stageErr(StageFactory); err != nil {
		return nil, err
	}
	p.hold("factory")
	return &fakeHandle{p: p, name: "factory"}, nil
}

type fakeHandle struct {
	p    *fakePlatform
	name string
}

func (h *fakeHandle) Release() error {
	h.p.release(h.name)
	return nil
}

func (h *fakeHandle) EnumAdapter(int) (Adapter, error) {
	if err := h.p.stageErr(StageAdapter); err != nil {
		return nil, err
	}
	h.p.hold("adapter")
	return &fakeHandle{p: h.p, name: "adapter"}, nil
}

func (h *fakeHandle) CreateDevice() (Device, DeviceContext, error) {
	if err := h.p.stageErr(StageDevice); err != nil {
		return nil, nil, err
	}
	h.p.hold("device")
	h.p.hold("context")
	return &fakeHandle{p: h.p, name: "device"}, &fakeHandle{p: h.p, name: "context"}, nil
}

func (h *fakeHandle) EnumOutput(int) (Output, error) {
	if err := h.p.stageErr(StageOutput); err != nil {
		return nil, err
	}
	h.p.hold("output")
	return &fakeHandle{p: h.p, name: "output"}, nil
}

func (h *fakeHandle) Duplicate(Device) (Duplication, error) {
	if err := h.p.stageErr(StageDuplication); err != nil {
		return nil, err
	}
	h.p.hold("duplication")
	return &fakeHandle{p: h.p, name: "duplication"}, nil
}

func (h *fakeHandle) AcquireNextFrame(time.Duration) (FrameResource, error) {
	p := h.p
	p.acquires++
	if len(p.frames) > 0 {
		err := p.frames[0]
		p.frames = p.frames[1:]
		if err != nil {
			return nil, err
		}
	}
	p.hold("frame")
	p.hold("resource")
	return &fakeTexture{fakeHandle: fakeHandle{p: p, name: "resource"}}, nil
}

func (h *fakeHandle) ReleaseFrame() error {
	h.p.release("frame")
	return nil
}

func (h *fakeHandle) CreateStagingTexture(desc TextureDesc) (Texture, error) {
	if !h.p.stagingOK {
		return nil, errors.New("out of video memory")
	}
	h.p.hold("staging")
	return &fakeTexture{fakeHandle: fakeHandle{p: h.p, name: "staging"}, desc: desc}, nil
}

func (h *fakeHandle) CopyResource(dst, src Texture) {}

func (h *fakeHandle) Map(Texture) (MappedSurface, error) {
	p := h.p
	if len(p.mapErrs) > 0 {
		err := p.mapErrs[0]
		p.mapErrs = p.mapErrs[1:]
		if err != nil {
			return MappedSurface{}, err
		}
	}
	data := make([]byte, p.rowPitch*p.height)
	for row := 0; row < p.height; row++ {
		for i := 0; i < p.rowPitch; i++ {
			if i < p.width*BytesPerPixel {
				data[row*p.rowPitch+i] = byte(row + 1)
			} else {
				data[row*p.rowPitch+i] = 0xEE
			}
		}
	}
	p.hold("mapped")
	return MappedSurface{Data: data, RowPitch: p.rowPitch}, nil
}

func (h *fakeHandle) Unmap(Texture) {
	h.p.release("mapped")
}

type fakeTexture struct {
	fakeHandle
	desc TextureDesc
}

func (t *fakeTexture) Texture() (Texture, error) {
	t.p.hold("texture")
	return &fakeTexture{fakeHandle: fakeHandle{p: t.p, name: "texture"}, desc: TextureDesc{Width: t.p.width, Height: t.p.height}}, nil
}

func (t *fakeTexture) Desc() TextureDesc { return t.desc }

// scriptedOpener hands out grabbers that replay a list of outcomes.
type scriptedOpener struct {
	openErrs []error
	script   []Kind
	opened   int
	closed   int
}

func (o *scriptedOpener) Open() (Grabber, error) {
	if len(o.openErrs) > 0 {
		err := o.openErrs[0]
		o.openErrs = o.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	o.opened++
	return &scriptedGrabber{o: o}, nil
}

type scriptedGrabber struct {
	o   *scriptedOpener
	buf PixelBuffer
}

func (g *scriptedGrabber) Grab(time.Duration) Outcome {
	if len(g.o.script) == 0 {
		return Outcome{Kind: OutcomeTimeout}
	}
	k := g.o.script[0]
	g.o.script = g.o.script[1:]
	switch k {
	case OutcomeFrame:
		g.buf.Resize(4, 2)
		return Outcome{Kind: OutcomeFrame, Buffer: &g.buf}
	case OutcomeAccessLost:
		return Outcome{Kind: k, Err: ErrAccessLost}
	case OutcomeFatal:
		return Outcome{Kind: k, Err: &FatalError{Err: errors.New("map failed")}}
	}
	return Outcome{Kind: k}
}

func (g *scriptedGrabber) Close() error {
	g.o.closed++
	return nil
}
