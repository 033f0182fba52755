// Package logger provides basic logging functionalities backed by zap.
package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines a simple interface for logging.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = newZap(level, false)
	std   Logger = base.Sugar()
)

// ParseLevel converts "debug", "info", "warn", "error" or "fatal" into a zap level.
// Unknown values fall back to info.
func ParseLevel(logLevel string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(logLevel)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func newZap(lvl zap.AtomicLevel, development bool) *zap.Logger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = lvl
	l, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build zap logger: %v\n", err)
		return zap.NewNop()
	}
	return l
}

// New builds a structured logger for components. The debug level uses the
// development encoder, every other level the production JSON encoder.
func New(logLevel string) *zap.Logger {
	lvl := ParseLevel(logLevel)
	return newZap(zap.NewAtomicLevelAt(lvl), lvl == zapcore.DebugLevel)
}

// SetGlobalLogLevel reconfigures the global std logger's level.
func SetGlobalLogLevel(logLevel string) {
	mu.Lock()
	defer mu.Unlock()
	lvl := ParseLevel(logLevel)
	level.SetLevel(lvl)
	if lvl == zapcore.DebugLevel {
		base = newZap(level, true)
		std = base.Sugar()
	}
}

// L returns the zap logger behind the global facade.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func current() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// Debug logs a debug message using the global std logger.
func Debug(args ...interface{}) {
	current().Debug(args...)
}

// Debugf logs a debug message with formatting.
func Debugf(format string, args ...interface{}) {
	current().Debugf(format, args...)
}

// Info logs an informational message using the global std logger.
func Info(args ...interface{}) {
	current().Info(args...)
}

// Infof logs an informational message with formatting.
func Infof(format string, args ...interface{}) {
	current().Infof(format, args...)
}

// Warnf logs a warning with formatting.
func Warnf(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

// Error logs an error message.
func Error(args ...interface{}) {
	current().Error(args...)
}

// Errorf logs an error message with formatting.
func Errorf(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

// Fatal logs a fatal error message and exits.
func Fatal(args ...interface{}) {
	current().Fatal(args...)
}

// Fatalf logs a fatal error message with formatting and exits.
func Fatalf(format string, args ...interface{}) {
	current().Fatalf(format, args...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = L().Sync()
}
