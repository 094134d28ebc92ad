package capture

type Kind int

const (
	OutcomeFrame Kind = iota
	OutcomeTimeout
	OutcomeAccessLost
	OutcomeFatal
)

func (k Kind) String() string {
	switch k {
	case OutcomeFrame:
		return "frame"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeAccessLost:
		return "access_lost"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result of one acquisition: exactly one of a frame, a
// timeout, a lost session or a fatal failure.
type Outcome struct {
	Kind   Kind
	Buffer *PixelBuffer
	Err    error
}

func (o Outcome) Width() int {
	if o.Buffer == nil {
		return 0
	}
	return o.Buffer.Width
}

func (o Outcome) Height() int {
	if o.Buffer == nil {
		return 0
	}
	return o.Buffer.Height
}
