package capture

import "fmt"

// BytesPerPixel is fixed for every source: packed BGRA.
const BytesPerPixel = 4

// PixelBuffer holds the most recent frame. It is reused in place and becomes
// invalid as soon as the next acquisition starts.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

func (b *PixelBuffer) Stride() int {
	return b.Width * BytesPerPixel
}

// Resize adjusts the buffer to w x h. It reports whether the dimensions
// changed; capacity is reused whenever it is large enough.
func (b *PixelBuffer) Resize(w, h int) bool {
	n := w * h * BytesPerPixel
	if w == b.Width && h == b.Height && len(b.Pix) == n {
		return false
	}
	if cap(b.Pix) >= n {
		b.Pix = b.Pix[:n]
	} else {
		b.Pix = make([]byte, n)
	}
	b.Width, b.Height = w, h
	return true
}

// CopyRows fills the buffer from a mapped surface whose rows are rowPitch
// bytes apart. rowPitch may exceed the packed row width.
func (b *PixelBuffer) CopyRows(src []byte, rowPitch int) error {
	rowBytes := b.Stride()
	if b.Height == 0 || rowBytes == 0 {
		return nil
	}
	if rowPitch < rowBytes {
		return fmt.Errorf("row pitch %d smaller than row width %d", rowPitch, rowBytes)
	}
	if need := rowPitch*(b.Height-1) + rowBytes; len(src) < need {
		return fmt.Errorf("mapped surface holds %d bytes, need %d", len(src), need)
	}
	if rowPitch == rowBytes {
		copy(b.Pix, src[:rowBytes*b.Height])
		return nil
	}
	for row := 0; row < b.Height; row++ {
		copy(b.Pix[row*rowBytes:(row+1)*rowBytes], src[row*rowPitch:row*rowPitch+rowBytes])
	}
	return nil
}
