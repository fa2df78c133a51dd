// Package observability sets up the process-wide zap logger.
package observability

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/ortelius/vulnprio/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

// NewLogger builds a logger writing human readable lines to console and,
// when cfg.LogFile is set, JSON lines to a rotated file.
func NewLogger(cfg config.LoggerConfig, console zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder(cfg.Format), console, level)}

	if cfg.LogFile != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(encoder("json"), fileWriter, level))
	}

	options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddSource {
		options = append(options, zap.AddCaller())
	}

	logger := zap.New(zapcore.NewTee(cores...), options...)
	if cfg.ServiceName != "" {
		logger = logger.Named(cfg.ServiceName)
	}
	return logger
}

// encoder returns the console encoder with ISO8601 timestamps, or a JSON encoder.
func encoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	if format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// InitializeLogger sets up the global logger once, writing to stdout.
func InitializeLogger(cfg config.LoggerConfig) *zap.Logger {
	once.Do(func() {
		logger := NewLogger(cfg, zapcore.Lock(os.Stdout))
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
	})
	return GetLogger()
}

// GetLogger returns the global logger, or a development logger when
// InitializeLogger has not run.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("fallback")
}

// Sync flushes the global logger.
func Sync() {
	if logger := globalLogger.Load(); logger != nil {
		_ = logger.Sync()
	}
}

// ResetForTest clears the global logger. Tests only.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}
