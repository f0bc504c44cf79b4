// Package logger provides basic logging functionalities.
// The package-level helpers are meant for cmd/ entry points; library code
// receives a *zap.Logger through its constructor instead.
package logger

import (
	"strings"
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
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// zapLogger adapts a zap SugaredLogger to the Logger interface.
type zapLogger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

// NewLogger creates and configures a new Logger instance.
// loglevel could be "debug", "info", "warn", "error", "fatal"
func NewLogger(logLevel string) Logger {
	return newZapLogger(logLevel)
}

func newZapLogger(logLevel string) *zapLogger {
	var cfg zap.Config
	if strings.EqualFold(logLevel, "debug") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(logLevel))

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Building from a static config only fails on bad sinks.
		base = zap.NewNop()
	}
	return &zapLogger{base: base, sugar: base.Sugar()}
}

func parseLevel(logLevel string) zapcore.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(args ...interface{})                 { l.sugar.Debug(args...) }
func (l *zapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Info(args ...interface{})                  { l.sugar.Info(args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warn(args ...interface{})                  { l.sugar.Warn(args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Error(args ...interface{})                 { l.sugar.Error(args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Fatal(args ...interface{})                 { l.sugar.Fatal(args...) }
func (l *zapLogger) Fatalf(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }

var (
	mu  sync.RWMutex
	std = newZapLogger("info")
)

func current() *zapLogger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// SetGlobalLogLevel reconfigures the global std logger's level.
func SetGlobalLogLevel(logLevel string) {
	next := newZapLogger(logLevel)
	mu.Lock()
	prev := std
	std = next
	mu.Unlock()
	_ = prev.base.Sync()
}

// Zap returns the structured logger behind the global std logger, without
// the extra caller skip used by the package-level helpers.
func Zap() *zap.Logger {
	return current().base.WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes any buffered log entries.
func Sync() error {
	return current().base.Sync()
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

// Warn logs a warning message.
func Warn(args ...interface{}) {
	current().Warn(args...)
}

// Warnf logs a warning message with formatting.
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
