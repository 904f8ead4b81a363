// Package logging provides structured logging for mudra.
// It wraps zap's sugared logger with a small package-level facade.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.SugaredLogger
	mu     sync.Mutex
)

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error". Unknown values mean "info".
// Calling Init again replaces the logger.
func Init(level string) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	// JSON in production, console otherwise
	var cfg zap.Config
	if os.Getenv("MUDRA_ENV") == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}

	mu.Lock()
	old := logger
	logger = l.Sugar()
	mu.Unlock()

	if old != nil {
		_ = old.Sync()
	}
}

// L returns the global logger instance, initializing it at info level if needed.
func L() *zap.SugaredLogger {
	mu.Lock()
	l := logger
	mu.Unlock()

	if l == nil {
		Init("info")
		mu.Lock()
		l = logger
		mu.Unlock()
	}
	return l
}

// Named returns a child logger for a component.
func Named(name string) *zap.SugaredLogger {
	return L().Named(name)
}

// SetLogger replaces the global logger. Tests use it with zaptest or zap.NewNop.
func SetLogger(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Sync flushes any buffered log entries.
func Sync() error {
	return L().Sync()
}
