package capture

import "go.uber.org/multierr"

// Context owns one complete resource chain. Either every handle is set or
// none is; acquireContext and release keep it that way.
type Context struct {
	factory Factory
	adapter Adapter
	device  Device
	devCtx  DeviceContext
	output  Output
	dupl    Duplication
}

// acquireContext walks factory -> adapter -> device+context -> output ->
// duplication. On any failure everything acquired so far is released in
// reverse order before the *InitError is returned.
func acquireContext(p Platform, adapterIndex, outputIndex int) (*Context, error) {
	c := &Context{}
	fail := func(stage Stage, err error) (*Context, error) {
		_ = c.release()
		return nil, &InitError{Stage: stage, Err: err}
	}

	factory, err := p.CreateFactory()
	if err != nil {
		return fail(StageFactory, err)
	}
	c.factory = factory

	adapter, err := factory.EnumAdapter(adapterIndex)
	if err != nil {
		return fail(StageAdapter, err)
	}
	c.adapter = adapter

	device, devCtx, err := adapter.CreateDevice()
	if err != nil {
		// a half-built pair is never kept
		if device != nil {
			_ = device.Release()
		}
		if devCtx != nil {
			_ = devCtx.Release()
		}
		return fail(StageDevice, err)
	}
	c.device, c.devCtx = device, devCtx

	output, err := adapter.EnumOutput(outputIndex)
	if err != nil {
		return fail(StageOutput, err)
	}
	c.output = output

	dupl, err := output.Duplicate(device)
	if err != nil {
		return fail(StageDuplication, err)
	}
	c.dupl = dupl
	return c, nil
}

// release drops duplication, output, device context, device, adapter and
// factory, in that order. Each release runs regardless of earlier failures.
func (c *Context) release() error {
	var err error
	if c.dupl != nil {
		err = multierr.Append(err, c.dupl.Release())
		c.dupl = nil
	}
	if c.output != nil {
		err = multierr.Append(err, c.output.Release())
		c.output = nil
	}
	if c.devCtx != nil {
		err = multierr.Append(err, c.devCtx.Release())
		c.devCtx = nil
	}
	if c.device != nil {
		err = multierr.Append(err, c.device.Release())
		c.device = nil
	}
	if c.adapter != nil {
		err = multierr.Append(err, c.adapter.Release())
		c.adapter = nil
	}
	if c.factory != nil {
		err = multierr.Append(err, c.factory.Release())
		c.factory = nil
	}
	return err
}

// held counts live handles.
func (c *Context) held() int {
	n := 0
	for _, h := range []Releaser{c.factory, c.adapter, c.device, c.devCtx, c.output, c.dupl} {
		if h != nil {
			n++
		}
	}
	return n
}
