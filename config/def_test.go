package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, SourceDesktop, cfg.Capture.Source)
	assert.Equal(t, 60, cfg.Capture.TargetFPS)
	assert.Equal(t, 2*time.Second, cfg.Capture.Cooldown)
	assert.Equal(t, 100*time.Millisecond, cfg.Capture.FrameTimeout)
	assert.Equal(t, 5, cfg.Capture.MaxFailures)
	assert.Equal(t, 3, cfg.Capture.StepRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.Capture.StepRetryDelay)
	assert.Equal(t, 640, cfg.Model.InputSize)
	assert.Equal(t, float32(0.5), cfg.Model.Confidence)
	assert.Equal(t, float32(0.4), cfg.Model.Iou)
	assert.Equal(t, 5*time.Second, cfg.Snapshot.Interval)
	assert.False(t, cfg.Snapshot.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
capture:
  source: Camera
  cameraIndex: 1
  cooldown: 3s
model:
  path: models/custom.onnx
  backend: opencl
snapshot:
  enabled: true
  interval: 10s
log:
  level: debug
  output: logs/agent.log
regServer:
  enabled: true
  host: 10.0.0.2
  port: 8080
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, SourceCamera, cfg.Capture.Source)
	assert.Equal(t, 30, cfg.Capture.TargetFPS)
	assert.Equal(t, 1, cfg.Capture.CameraIndex)
	assert.Equal(t, 3*time.Second, cfg.Capture.Cooldown)
	assert.Equal(t, "models/custom.onnx", cfg.Model.Path)
	assert.Equal(t, "opencl", cfg.Model.Backend)
	assert.True(t, cfg.Snapshot.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Snapshot.Interval)
	assert.Equal(t, "logs/agent.log", cfg.Log.Output)
	assert.Equal(t, 5*time.Second, cfg.RegServer.Interval)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"bad source":       "capture:\n  source: scanner\n",
		"bad confidence":   "model:\n  confidence: 1.5\n",
		"bad input size":   "model:\n  inputSize: 600\n",
		"reg without host": "regServer:\n  enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeConfig(t, "capture: [oops"))
	assert.Error(t, err)
}
