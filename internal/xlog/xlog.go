// Package xlog centralizes zap logger construction so every broker/client
// subsystem logs through the same encoder, level, and rotation policy.
package xlog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Log wraps a *zap.Logger scoped to one module name.
type Log = zap.Logger

var (
	mu   sync.RWMutex
	base *zap.Logger
)

// Options configures the process-wide base logger. Call Configure once
// during startup; every call to LoggerModule derives from the current base.
type Options struct {
	Development bool
	Level       zapcore.Level
	FilePath    string // empty disables file rotation, logging to stderr only
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

// Configure installs the process-wide base logger.
func Configure(opts Options) error {
	var encoder zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if opts.Development {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if opts.FilePath != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    nonZero(opts.MaxSizeMB, 100),
			MaxBackups: nonZero(opts.MaxBackups, 5),
			MaxAge:     nonZero(opts.MaxAgeDays, 28),
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(encoder, sink, opts.Level)
	l := zap.New(core, zap.AddCaller())

	mu.Lock()
	base = l
	mu.Unlock()
	return nil
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// LoggerModule returns a logger tagged with the "module" field.
func LoggerModule(name string) *zap.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l == nil {
		l, _ = zap.NewProduction()
	}
	return l.With(zap.String("module", name))
}
