package pipeline

import (
	"time"

	"ScreenDetAgent/capture"

	"go.uber.org/atomic"
)

// Stats is written by the loop and read concurrently by the status API and
// the heartbeat.
type Stats struct {
	Frames       atomic.Int64
	Detections   atomic.Int64
	Timeouts     atomic.Int64
	Transients   atomic.Int64
	Reinits      atomic.Int64
	InitFailures atomic.Int64
	FPS          atomic.Float64
	State        atomic.String
	LastFrameAt  atomic.Time

	startedAt time.Time
}

func NewStats() *Stats {
	s := &Stats{startedAt: time.Now()}
	s.State.Store(capture.StateUninitialized.String())
	return s
}

func (s *Stats) SetState(st capture.State) {
	s.State.Store(st.String())
}

type Status struct {
	State        string    `json:"state"`
	Frames       int64     `json:"frames"`
	Detections   int64     `json:"detections"`
	Timeouts     int64     `json:"timeouts"`
	Transients   int64     `json:"transient_failures"`
	Reinits      int64     `json:"reinits"`
	InitFailures int64     `json:"init_failures"`
	FPS          float64   `json:"fps"`
	LastFrameAt  time.Time `json:"last_frame_at"`
	Uptime       string    `json:"uptime"`
}

func (s *Stats) Snapshot() Status {
	return Status{
		State:        s.State.Load(),
		Frames:       s.Frames.Load(),
		Detections:   s.Detections.Load(),
		Timeouts:     s.Timeouts.Load(),
		Transients:   s.Transients.Load(),
		Reinits:      s.Reinits.Load(),
		InitFailures: s.InitFailures.Load(),
		FPS:          s.FPS.Load(),
		LastFrameAt:  s.LastFrameAt.Load(),
		Uptime:       time.Since(s.startedAt).Truncate(time.Second).String(),
	}
}
