package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"ScreenDetAgent/capture"
	"ScreenDetAgent/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const namespace = "screendet"

// Metrics is the agent's prometheus registry. It implements the pipeline
// observer so the loop can feed it directly.
type Metrics struct {
	registry *prometheus.Registry

	memUsage     prometheus.Gauge
	cpuUsage     prometheus.Gauge
	frames       prometheus.Counter
	detections   prometheus.Counter
	outcomes     *prometheus.CounterVec
	reinits      prometheus.Counter
	initFailures *prometheus.CounterVec
	frameLatency prometheus.Histogram
	captureState prometheus.Gauge

	proc *process.Process
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_megabytes",
			Help:      "Resident memory in megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_usage_percent",
			Help:      "CPU usage in percent",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames captured and processed",
		}),
		detections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detections surviving suppression",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_outcomes_total",
			Help:      "Capture outcomes by kind",
		}, []string{"kind"}),
		reinits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_reinits_total",
			Help:      "Capture sessions torn down and rebuilt",
		}),
		initFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_init_failures_total",
			Help:      "Capture init failures by stage",
		}, []string{"stage"}),
		frameLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_latency_seconds",
			Help:      "Acquire to presented latency per frame",
			Buckets:   []float64{.005, .01, .016, .025, .033, .05, .1, .25, .5},
		}),
		captureState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_state",
			Help:      "Capture state: 0 uninitialized, 1 ready, 2 capturing, 3 degraded, 4 lost",
		}),
	}
	m.registry.MustRegister(m.memUsage, m.cpuUsage, m.frames, m.detections, m.outcomes,
		m.reinits, m.initFailures, m.frameLatency, m.captureState)

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Log().Warn("process stats unavailable", zap.Error(err))
	}
	m.proc = proc
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveFrame(latency time.Duration, detections int) {
	m.frames.Inc()
	m.detections.Add(float64(detections))
	m.frameLatency.Observe(latency.Seconds())
}

func (m *Metrics) ObserveOutcome(kind capture.Kind) {
	m.outcomes.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) ObserveReinit() {
	m.reinits.Inc()
}

func (m *Metrics) ObserveInitFailure(stage string) {
	m.initFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) SetState(s capture.State) {
	m.captureState.Set(float64(s))
}

func (m *Metrics) CheckProcessInfo() {
	if m.proc == nil {
		return
	}
	if memInfo, err := m.proc.MemoryInfo(); err == nil {
		m.memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	if cpuPercent, err := m.proc.CPUPercent(); err == nil {
		m.cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StatusFunc returns the JSON body served at /api/status.
type StatusFunc func() any

func NewRouter(m *Metrics, status StatusFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/status", func(c *gin.Context) {
		if status == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": status()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})))
	return r
}

// StartMon serves the router on port and refreshes process gauges until ctx
// is done.
func StartMon(ctx context.Context, port int, m *Metrics, status StatusFunc) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: NewRouter(m, status),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("monitor server stopped", zap.Error(err))
		}
	}()
	logger.Log().Info("monitor listening", zap.Int("port", port))

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			m.CheckProcessInfo()
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Warn("monitor shutdown", zap.Error(err))
	}
}
