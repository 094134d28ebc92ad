package pipeline

import (
	"context"
	"errors"
	"time"

	"ScreenDetAgent/capture"
	iface "ScreenDetAgent/interface"
	"ScreenDetAgent/logger"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type Session interface {
	Init() error
	AcquireFrame(timeout time.Duration) capture.Outcome
	Teardown() error
	State() capture.State
}

// FrameHandler consumes one frame. It must be done with buf when it
// returns; quit asks the loop to stop.
type FrameHandler interface {
	HandleFrame(buf *capture.PixelBuffer) (dets iface.DetectionSet, quit bool)
}

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Observer receives loop events, e.g. for metrics.
type Observer interface {
	ObserveFrame(latency time.Duration, detections int)
	ObserveOutcome(kind capture.Kind)
	ObserveReinit()
	ObserveInitFailure(stage string)
}

type nopObserver struct{}

func (nopObserver) ObserveFrame(time.Duration, int) {}
func (nopObserver) ObserveOutcome(capture.Kind)     {}
func (nopObserver) ObserveReinit()                  {}
func (nopObserver) ObserveInitFailure(string)       {}

type Config struct {
	TargetFPS    int
	FrameTimeout time.Duration
	Cooldown     time.Duration
	RetryDelay   time.Duration
	LogEvery     int64
}

func DefaultConfig(fps int) Config {
	return Config{
		TargetFPS:    fps,
		FrameTimeout: 100 * time.Millisecond,
		Cooldown:     2 * time.Second,
		RetryDelay:   10 * time.Millisecond,
		LogEvery:     100,
	}
}

// Interval is the per-frame budget, 1000/fps whole milliseconds.
func (c Config) Interval() time.Duration {
	if c.TargetFPS <= 0 {
		return 0
	}
	return time.Duration(1000/c.TargetFPS) * time.Millisecond
}

type Option func(*Loop)

func WithClock(c Clock) Option { return func(l *Loop) { l.clock = c } }

func WithStats(s *Stats) Option { return func(l *Loop) { l.stats = s } }

func WithObserver(o Observer) Option { return func(l *Loop) { l.observer = o } }

// Loop drives acquire, handle and pace on the calling goroutine.
type Loop struct {
	session  Session
	handler  FrameHandler
	cfg      Config
	clock    Clock
	stats    *Stats
	observer Observer

	windowStart time.Time
}

func New(session Session, handler FrameHandler, cfg Config, opts ...Option) *Loop {
	l := &Loop{
		session:  session,
		handler:  handler,
		cfg:      cfg,
		clock:    clock.New(),
		stats:    NewStats(),
		observer: nopObserver{},
	}
	for _, o := range opts {
		o(l)
	}
	if l.cfg.LogEvery <= 0 {
		l.cfg.LogEvery = 100
	}
	return l
}

func (l *Loop) Stats() *Stats {
	return l.stats
}

// Run loops until ctx is done or the handler asks to quit. Stop requests
// are checked once per iteration. Capture is torn down on return.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()
	interval := l.cfg.Interval()
	l.windowStart = l.clock.Now()
	logger.Log().Info("pipeline started", zap.Int("target_fps", l.cfg.TargetFPS), zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("stop requested", zap.Error(ctx.Err()))
			return nil
		default:
		}

		if l.session.State() == capture.StateUninitialized {
			if err := l.session.Init(); err != nil {
				l.initFailed(err)
				l.clock.Sleep(l.cfg.Cooldown)
				continue
			}
			logger.Log().Info("capture ready")
		}

		start := l.clock.Now()
		out := l.session.AcquireFrame(l.cfg.FrameTimeout)
		l.observer.ObserveOutcome(out.Kind)

		switch out.Kind {
		case capture.OutcomeFrame:
			dets, quit := l.handler.HandleFrame(out.Buffer)
			l.frameDone(start, len(dets))
			if quit {
				logger.Log().Info("quit requested by presenter")
				return nil
			}
			l.pace(start, interval)
		case capture.OutcomeTimeout:
			l.stats.Timeouts.Inc()
		default:
			if out.Kind == capture.OutcomeFatal {
				l.stats.Transients.Inc()
			}
			if l.session.State() == capture.StateLost {
				l.reinit(out.Err)
			} else {
				l.clock.Sleep(l.cfg.RetryDelay)
			}
		}
	}
}

func (l *Loop) initFailed(err error) {
	stage := "unknown"
	var ie *capture.InitError
	if errors.As(err, &ie) {
		stage = string(ie.Stage)
	}
	l.stats.InitFailures.Inc()
	l.observer.ObserveInitFailure(stage)
	logger.Log().Error("capture init failed",
		zap.String("stage", stage),
		zap.Duration("retry_in", l.cfg.Cooldown),
		zap.Error(err))
}

func (l *Loop) reinit(cause error) {
	logger.Log().Warn("capture lost, reinitializing",
		zap.Duration("cooldown", l.cfg.Cooldown),
		zap.Error(cause))
	if err := l.session.Teardown(); err != nil {
		logger.Log().Warn("capture teardown incomplete", zap.Error(err))
	}
	l.stats.Reinits.Inc()
	l.observer.ObserveReinit()
	l.clock.Sleep(l.cfg.Cooldown)
}

func (l *Loop) frameDone(start time.Time, detections int) {
	now := l.clock.Now()
	n := l.stats.Frames.Inc()
	l.stats.Detections.Add(int64(detections))
	l.stats.LastFrameAt.Store(now)
	l.observer.ObserveFrame(now.Sub(start), detections)

	if n%l.cfg.LogEvery != 0 {
		return
	}
	if elapsed := now.Sub(l.windowStart); elapsed > 0 {
		l.stats.FPS.Store(float64(l.cfg.LogEvery) / elapsed.Seconds())
	}
	l.windowStart = now
	logger.Log().Info("frames processed",
		zap.Int64("frames", n),
		zap.Float64("fps", l.stats.FPS.Load()),
		zap.Int("detections", detections))
}

// pace sleeps out whatever is left of the frame budget. Overruns are not
// made up.
func (l *Loop) pace(start time.Time, interval time.Duration) {
	if remaining := interval - l.clock.Now().Sub(start); remaining > 0 {
		l.clock.Sleep(remaining)
	}
}

func (l *Loop) shutdown() {
	if err := l.session.Teardown(); err != nil {
		logger.Log().Warn("capture teardown incomplete", zap.Error(err))
	}
	logger.Log().Info("pipeline stopped", zap.Int64("frames", l.stats.Frames.Load()))
}
