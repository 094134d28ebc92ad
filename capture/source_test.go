package capture

import (
	"errors"
	"testing"
	"time"

	"ScreenDetAgent/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFake(t *testing.T, p *fakePlatform) (Grabber, *PixelBuffer) {
	t.Helper()
	buf := &PixelBuffer{}
	o := NewDuplicationOpener(p, buf)
	o.Policy = retry.Policy{Attempts: 3, Delay: 0}
	g, err := o.Open()
	require.NoError(t, err)
	return g, buf
}

func TestDuplicationGrab(t *testing.T) {
	t.Run("frame copied without pitch padding", func(t *testing.T) {
		p := newFakePlatform(3, 2, 3*BytesPerPixel+4)
		g, buf := openFake(t, p)

		out := g.Grab(100 * time.Millisecond)
		require.Equal(t, OutcomeFrame, out.Kind)
		assert.Same(t, buf, out.Buffer)
		assert.Equal(t, 3, out.Width())
		assert.Equal(t, 2, out.Height())
		assert.Len(t, buf.Pix, 3*2*BytesPerPixel)
		assert.NotContains(t, buf.Pix, byte(0xEE))

		require.NoError(t, g.Close())
		assert.Empty(t, p.leaked())
	})

	t.Run("timeout is not retried", func(t *testing.T) {
		p := newFakePlatform(3, 2, 12)
		p.frames = []error{ErrWaitTimeout, nil}
		g, _ := openFake(t, p)

		out := g.Grab(time.Millisecond)
		assert.Equal(t, OutcomeTimeout, out.Kind)
		assert.Equal(t, 1, p.acquires)
		require.NoError(t, g.Close())
		assert.Empty(t, p.leaked())
	})

	t.Run("access lost surfaces immediately", func(t *testing.T) {
		p := newFakePlatform(3, 2, 12)
		p.frames = []error{ErrAccessLost}
		g, _ := openFake(t, p)

		out := g.Grab(time.Millisecond)
		assert.Equal(t, OutcomeAccessLost, out.Kind)
		assert.ErrorIs(t, out.Err, ErrAccessLost)
		assert.Equal(t, 1, p.acquires)
	})

	t.Run("device lost maps to access lost", func(t *testing.T) {
		p := newFakePlatform(3, 2, 12)
		p.mapErrs = []error{ErrDeviceLost}
		g, _ := openFake(t, p)

		out := g.Grab(time.Millisecond)
		assert.Equal(t, OutcomeAccessLost, out.Kind)
		assert.ErrorIs(t, out.Err, ErrDeviceLost)
		require.NoError(t, g.Close())
		assert.Empty(t, p.leaked())
	})

	t.Run("transient step retried then succeeds", func(t *testing.T) {
		p := newFakePlatform(3, 2, 12)
		p.mapErrs = []error{errors.New("map busy"), errors.New("map busy")}
		g, _ := openFake(t, p)

		out := g.Grab(time.Millisecond)
		assert.Equal(t, OutcomeFrame, out.Kind)
		assert.Equal(t, 3, p.acquires)
		require.NoError(t, g.Close())
		assert.Empty(t, p.leaked())
	})

	t.Run("retry budget exhausted is fatal and leaks nothing", func(t *testing.T) {
		p := newFakePlatform(3, 2, 12)
		p.stagingOK = false
		g, _ := openFake(t, p)

		out := g.Grab(time.Millisecond)
		assert.Equal(t, OutcomeFatal, out.Kind)
		var fe *FatalError
		assert.ErrorAs(t, out.Err, &fe)
		assert.Equal(t, 3, p.acquires)
		require.NoError(t, g.Close())
		assert.Empty(t, p.leaked())
	})

	t.Run("many frames keep resources balanced", func(t *testing.T) {
		p := newFakePlatform(3, 2, 12)
		g, _ := openFake(t, p)
		for i := 0; i < 1000; i++ {
			require.Equal(t, OutcomeFrame, g.Grab(time.Millisecond).Kind)
		}
		require.NoError(t, g.Close())
		assert.Empty(t, p.leaked())
	})
}
