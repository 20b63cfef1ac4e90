// Package logger provides structured logging for fleetsync.
// It wraps a process-wide zap logger. Messages below the configured level
// are discarded; --verbose on the CLI lowers the level to debug.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	output io.Writer = os.Stderr
	base             = build(output, zapcore.InfoLevel)
)

// Init configures the logger with the specified level.
// Valid levels: debug, info, warn, error. Defaults to info if invalid.
func Init(logLevel string) error {
	lvl := parseLevel(logLevel)

	mu.Lock()
	defer mu.Unlock()
	level.SetLevel(lvl)
	base = build(output, lvl)
	return nil
}

// SetVerbose switches between debug and info level.
func SetVerbose(v bool) {
	if v {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(zapcore.InfoLevel)
}

// IsVerbose returns true if debug messages are emitted.
func IsVerbose() bool {
	return level.Enabled(zapcore.DebugLevel)
}

// SetOutput sets the writer logs go to.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build(w, level.Level())
}

// L returns the underlying zap logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With returns a child logger carrying the given fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = L().Sync()
}

// Debug logs a debug message with optional fields.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info logs an info message with optional fields.
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn logs a warning message with optional fields.
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error logs an error message with optional fields.
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

func parseLevel(s string) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zapcore.InfoLevel
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// build creates a JSON logger writing to w. Debug level switches to the
// console encoder for readability.
func build(w io.Writer, lvl zapcore.Level) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.MessageKey = "message"

	encoder := zapcore.NewJSONEncoder(encCfg)
	if lvl == zapcore.DebugLevel {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(devCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	return zap.New(core)
}
