package capture

import (
	"errors"
	"fmt"
	"time"

	"ScreenDetAgent/logger"
	"ScreenDetAgent/retry"

	"go.uber.org/zap"
)

// Grabber is an initialized capture chain that yields frames into a shared
// PixelBuffer. It is not safe for concurrent use.
type Grabber interface {
	Grab(timeout time.Duration) Outcome
	Close() error
}

// Opener builds a Grabber. A failed Open leaves nothing held and should
// return an *InitError.
type Opener interface {
	Open() (Grabber, error)
}

// DuplicationOpener opens desktop duplication grabbers on a Platform. All
// grabbers it opens share one PixelBuffer.
type DuplicationOpener struct {
	Platform     Platform
	AdapterIndex int
	OutputIndex  int
	Policy       retry.Policy

	buf *PixelBuffer
}

func NewDuplicationOpener(p Platform, buf *PixelBuffer) *DuplicationOpener {
	if buf == nil {
		buf = &PixelBuffer{}
	}
	return &DuplicationOpener{Platform: p, Policy: retry.DefaultPolicy, buf: buf}
}

func (o *DuplicationOpener) Open() (Grabber, error) {
	ctx, err := acquireContext(o.Platform, o.AdapterIndex, o.OutputIndex)
	if err != nil {
		return nil, err
	}
	return &duplicationSource{ctx: ctx, buf: o.buf, policy: o.Policy}, nil
}

type duplicationSource struct {
	ctx    *Context
	buf    *PixelBuffer
	policy retry.Policy
}

func (s *duplicationSource) Grab(timeout time.Duration) Outcome {
	err := retry.Do(s.policy, func(attempt int) error {
		err := s.grabOnce(timeout)
		if err != nil && attempt < s.policy.Attempts && !errors.Is(err, ErrWaitTimeout) && !IsLost(err) {
			logger.Log().Debug("capture step failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	switch {
	case err == nil:
		return Outcome{Kind: OutcomeFrame, Buffer: s.buf}
	case errors.Is(err, ErrWaitTimeout):
		return Outcome{Kind: OutcomeTimeout}
	case IsLost(err):
		return Outcome{Kind: OutcomeAccessLost, Err: err}
	default:
		return Outcome{Kind: OutcomeFatal, Err: &FatalError{Err: err}}
	}
}

// grabOnce runs one pass of the frame protocol. The frame handle, texture
// and staging texture are released on every path.
func (s *duplicationSource) grabOnce(timeout time.Duration) (err error) {
	c := s.ctx
	res, err := c.dupl.AcquireNextFrame(timeout)
	if err != nil {
		if res != nil {
			_ = res.Release()
		}
		return stepError("acquire frame", err)
	}
	defer func() {
		if rerr := c.dupl.ReleaseFrame(); rerr != nil && err == nil {
			err = stepError("release frame", rerr)
		}
	}()

	tex, err := res.Texture()
	_ = res.Release()
	if err != nil {
		return stepError("query texture", err)
	}
	defer tex.Release()

	desc := tex.Desc()
	staging, err := c.device.CreateStagingTexture(desc)
	if err != nil {
		return stepError("create staging texture", err)
	}
	defer staging.Release()

	c.devCtx.CopyResource(staging, tex)
	mapped, err := c.devCtx.Map(staging)
	if err != nil {
		return stepError("map", err)
	}
	s.buf.Resize(desc.Width, desc.Height)
	err = s.buf.CopyRows(mapped.Data, mapped.RowPitch)
	c.devCtx.Unmap(staging)
	if err != nil {
		return stepError("copy rows", err)
	}
	return nil
}

func (s *duplicationSource) Close() error {
	return s.ctx.release()
}

// stepError names the failing step. Timeouts and lost sessions stop the
// retry loop, everything else is retried.
func stepError(step string, err error) error {
	wrapped := fmt.Errorf("%s: %w", step, err)
	if errors.Is(err, ErrWaitTimeout) || IsLost(err) {
		return retry.Stop(wrapped)
	}
	return wrapped
}
