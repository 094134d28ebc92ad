package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// Snapshotter writes at most one annotated frame per Interval into Dir.
type Snapshotter struct {
	Dir      string
	Interval time.Duration

	last time.Time
}

func NewSnapshotter(dir string, interval time.Duration) *Snapshotter {
	return &Snapshotter{Dir: dir, Interval: interval}
}

// Due reports whether a snapshot should be taken at now.
func (s *Snapshotter) Due(now time.Time) bool {
	return s.last.IsZero() || now.Sub(s.last) >= s.Interval
}

// Write stores img when due and returns the file path, or "" when skipped.
func (s *Snapshotter) Write(img gocv.Mat, now time.Time) (string, error) {
	if !s.Due(now) {
		return "", nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	name := fmt.Sprintf("snapshot_%s_%s.jpg", now.Format("20060102_150405"), uuid.NewString()[:8])
	path := filepath.Join(s.Dir, name)
	if !gocv.IMWrite(path, img) {
		return "", fmt.Errorf("write snapshot %s", path)
	}
	s.last = now
	return path, nil
}
