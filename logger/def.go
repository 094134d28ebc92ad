package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// Options selects level, encoding and destination. Output is "stdout",
// "stderr" or a file path; files are rotated.
type Options struct {
	Level      string
	Format     string
	Output     string
	MaxSizeMB  int
	MaxBackups int
}

func encoderConfig(base zapcore.EncoderConfig) zapcore.EncoderConfig {
	base.TimeKey = "timestamp"
	base.EncodeTime = zapcore.ISO8601TimeEncoder
	return base
}

// InitProduction installs a JSON logger on stderr.
func InitProduction() error {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig = encoderConfig(cfg.EncoderConfig)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

// InitDevelopment installs a console logger at debug level.
func InitDevelopment() error {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig = encoderConfig(cfg.EncoderConfig)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

// Init builds the logger from opts.
func Init(opts Options) error {
	level, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	var enc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encoderConfig(zap.NewProductionEncoderConfig()))
	case "console":
		enc = zapcore.NewConsoleEncoder(encoderConfig(zap.NewDevelopmentEncoderConfig()))
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	var ws zapcore.WriteSyncer
	switch opts.Output {
	case "", "stdout":
		ws = zapcore.Lock(os.Stdout)
	case "stderr":
		ws = zapcore.Lock(os.Stderr)
	default:
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Output,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		})
	}

	setLogger(zap.New(zapcore.NewCore(enc, ws, level), zap.AddCaller()))
	return nil
}

// setLogger swaps the package logger and zap's globals.
func setLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
	sugar = l.Sugar()
}

// Log never returns nil; before initialization it is zap's global no-op logger.
func Log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

func S() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

func Sync() {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
