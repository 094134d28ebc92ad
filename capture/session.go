package capture

import (
	"errors"
	"time"

	"ScreenDetAgent/logger"

	"go.uber.org/zap"
)

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateCapturing
	StateDegraded
	StateLost
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateCapturing:
		return "capturing"
	case StateDegraded:
		return "degraded"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

const DefaultMaxFailures = 5

type StateHook func(from, to State)

type Option func(*Session)

// WithMaxFailures sets how many consecutive transient failures mark the session lost.
func WithMaxFailures(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxFailures = n
		}
	}
}

func WithStateHook(h StateHook) Option {
	return func(s *Session) { s.hook = h }
}

// Session is the capture state machine. It holds at most one Grabber and
// never exposes it.
type Session struct {
	opener      Opener
	grabber     Grabber
	state       State
	failures    int
	maxFailures int
	hook        StateHook
}

func NewSession(opener Opener, opts ...Option) *Session {
	s := &Session{opener: opener, maxFailures: DefaultMaxFailures}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) State() State {
	return s.state
}

// Failures is the current count of consecutive transient failures.
func (s *Session) Failures() int {
	return s.failures
}

// Init moves an uninitialized session to Ready. It is a no-op when a chain
// is already held.
func (s *Session) Init() error {
	if s.grabber != nil {
		return nil
	}
	g, err := s.opener.Open()
	if err != nil {
		var ie *InitError
		if !errors.As(err, &ie) {
			err = &InitError{Stage: StageFactory, Err: err}
		}
		return err
	}
	s.grabber = g
	s.failures = 0
	s.setState(StateReady)
	return nil
}

// AcquireFrame grabs one frame and advances the state machine. The returned
// buffer is valid until the next call.
func (s *Session) AcquireFrame(timeout time.Duration) Outcome {
	if s.grabber == nil || s.state == StateLost {
		return Outcome{Kind: OutcomeFatal, Err: ErrNotReady}
	}
	out := s.grabber.Grab(timeout)
	switch out.Kind {
	case OutcomeFrame:
		s.failures = 0
		s.setState(StateCapturing)
	case OutcomeTimeout:
	case OutcomeAccessLost:
		logger.Log().Warn("capture access lost", zap.Error(out.Err))
		s.setState(StateLost)
	default:
		s.failures++
		logger.Log().Warn("capture failed",
			zap.Int("consecutive", s.failures),
			zap.Int("limit", s.maxFailures),
			zap.Error(out.Err))
		if s.failures >= s.maxFailures {
			s.setState(StateLost)
		} else {
			s.setState(StateDegraded)
		}
	}
	return out
}

// Teardown releases the whole chain and returns to Uninitialized. Release
// errors are combined; the chain is dropped either way.
func (s *Session) Teardown() error {
	var err error
	if s.grabber != nil {
		err = s.grabber.Close()
		s.grabber = nil
	}
	s.failures = 0
	s.setState(StateUninitialized)
	return err
}

func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	logger.Log().Debug("capture state", zap.Stringer("from", from), zap.Stringer("to", to))
	if s.hook != nil {
		s.hook(from, to)
	}
}
