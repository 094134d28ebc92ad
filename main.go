package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	adhoc "ScreenDetAgent/Adhoc"
	"ScreenDetAgent/camera"
	"ScreenDetAgent/capture"
	"ScreenDetAgent/config"
	"ScreenDetAgent/engine"
	rpc "ScreenDetAgent/gRPC"
	"ScreenDetAgent/logger"
	"ScreenDetAgent/monitor"
	"ScreenDetAgent/pipeline"
	"ScreenDetAgent/retry"
	"ScreenDetAgent/yolo"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// HighGUI and the capture chain must stay on the main OS thread.
func init() {
	runtime.LockOSThread()
}

const configEnv = "SCREENDET_CONFIG"

func main() {
	configPath := os.Getenv(configEnv)
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := run(configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Log()

	if err := engine.PrepareKernelCache(cfg.Model.KernelCacheDir); err != nil {
		log.Warn("kernel cache unavailable", zap.Error(err))
	}
	hw := engine.ProbeHardware()
	log.Info("hardware probed",
		zap.Bool("cuda", hw.HasCUDA),
		zap.Bool("opencl", hw.HasOpenCL),
		zap.String("vendor", hw.GPUVendor),
		zap.String("driver", hw.Driver))
	backend, err := engine.SelectBackend(cfg.Model.Backend, hw)
	if err != nil {
		return err
	}

	det := engine.NewDetector()
	params := yolo.Params{
		InputWidth:    cfg.Model.InputSize,
		InputHeight:   cfg.Model.InputSize,
		ConfThreshold: cfg.Model.Confidence,
		NMSThreshold:  cfg.Model.Iou,
	}
	if err := det.LoadModel(cfg.Model.Path, cfg.Model.NamesPath, params, backend); err != nil {
		var mle *engine.ModelLoadError
		if errors.As(err, &mle) {
			log.Error("model load failed, nothing to detect with", zap.Error(err))
		}
		return err
	}
	defer det.Destroy()
	if backend.GPU {
		det.Warmup(cfg.Model.Warmup)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup

	stats := pipeline.NewStats()
	metrics := monitor.NewMetrics()
	status := func() any { return stats.Snapshot() }
	var health *rpc.HealthServer
	if cfg.Monitor.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.StartMon(ctx, cfg.Monitor.Port, metrics, status)
		}()
		if health, err = rpc.StartHealthServer(cfg.Monitor.HealthPort); err != nil {
			log.Warn("health server disabled", zap.Error(err))
		} else {
			defer health.Stop()
		}
	}
	if cfg.RegServer.Enabled {
		reporter := adhoc.NewReporter(adhoc.RegServerConfig{
			Addr:     cfg.RegServer.Host,
			Port:     cfg.RegServer.Port,
			Interval: cfg.RegServer.Interval,
		}, cfg.Capture.Source, backend.Name, status)
		wg.Add(1)
		go reporter.SendAliveMessage(ctx, &wg)
		log.Info("heartbeat enabled", zap.String("id", reporter.ID()))
	}

	onState := func(_, to capture.State) {
		stats.SetState(to)
		metrics.SetState(to)
		if health != nil {
			health.SetCaptureState(to)
		}
	}
	session := capture.NewSession(newOpener(cfg),
		capture.WithMaxFailures(cfg.Capture.MaxFailures),
		capture.WithStateHook(onState))

	var presenter engine.Presenter = engine.Headless{}
	if !cfg.Display.Headless {
		presenter = engine.NewWindow(cfg.Display.WindowName, cfg.Display.Width, cfg.Display.Height)
	}
	var snapshots *engine.Snapshotter
	if cfg.Snapshot.Enabled {
		snapshots = engine.NewSnapshotter(cfg.Snapshot.Dir, cfg.Snapshot.Interval)
	}
	processor := engine.NewProcessor(det, presenter, snapshots)
	defer func() {
		if err := processor.Close(); err != nil {
			log.Warn("processor close", zap.Error(err))
		}
	}()

	loop := pipeline.New(session, processor, pipeline.Config{
		TargetFPS:    cfg.Capture.TargetFPS,
		FrameTimeout: cfg.Capture.FrameTimeout,
		Cooldown:     cfg.Capture.Cooldown,
		RetryDelay:   cfg.Capture.RetryDelay,
		LogEvery:     cfg.Capture.LogEvery,
	},
		pipeline.WithClock(clock.New()),
		pipeline.WithStats(stats),
		pipeline.WithObserver(metrics))

	err = loop.Run(ctx)
	stop()
	wg.Wait()
	return err
}

func newOpener(cfg *config.Config) capture.Opener {
	policy := retry.Policy{Attempts: cfg.Capture.StepRetries, Delay: cfg.Capture.StepRetryDelay}
	buf := &capture.PixelBuffer{}
	if cfg.Capture.Source == config.SourceCamera {
		o := camera.NewOpener(cfg.Capture.CameraIndex, cfg.Capture.TargetFPS, buf)
		o.Policy = policy
		return o
	}
	o := capture.NewDuplicationOpener(capture.NewPlatform(), buf)
	o.AdapterIndex = cfg.Capture.AdapterIndex
	o.OutputIndex = cfg.Capture.OutputIndex
	o.Policy = policy
	return o
}
