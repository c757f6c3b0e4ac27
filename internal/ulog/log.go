// Package ulog provides the forwarder's entity-tagged structured logger.
//
// The call shape (Info/Debug/Warn/Error/Fatal taking an "entity" as the
// first argument, then a message, then alternating key/value pairs) follows
// the teacher daemon's std/log package. The backend is zap, with optional
// lumberjack-rotated file output when a log file is configured.
package ulog

import (
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the teacher's std/log.Level constants.
type Level int

const (
	LevelTrace Level = -8
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
	LevelFatal Level = 12
)

// ParseLevel parses a string representation of a log level, returning an
// error for invalid inputs.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level: %s", s)
}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch {
	case l <= LevelTrace:
		return zapcore.DebugLevel
	case l <= LevelDebug:
		return zapcore.DebugLevel
	case l <= LevelInfo:
		return zapcore.InfoLevel
	case l <= LevelWarn:
		return zapcore.WarnLevel
	case l <= LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

var (
	mu      sync.Mutex
	logger  = newDefault()
	minimum = LevelInfo
)

func newDefault() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stderr), zapcore.DebugLevel)
	return zap.New(core)
}

// FileConfig configures rotated file output in addition to stderr.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Configure (re)initializes the global logger with the given minimum level
// and, if file.Path is non-empty, a lumberjack-rotated file sink alongside
// stderr.
func Configure(level Level, file *FileConfig) {
	mu.Lock()
	defer mu.Unlock()

	minimum = level
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewConsoleEncoder(cfg)

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), level.zapLevel())}
	if file != nil && file.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    nonZero(file.MaxSizeMB, 100),
			MaxBackups: nonZero(file.MaxBackups, 5),
			MaxAge:     nonZero(file.MaxAgeDays, 28),
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(rotator), level.zapLevel()))
	}
	logger = zap.New(zapcore.NewTee(cores...))
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func fields(entity any, kv []any) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2+1)
	out = append(out, zap.String("entity", fmt.Sprintf("%v", entity)))
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		out = append(out, zap.Any(key, kv[i+1]))
	}
	return out
}

// Trace logs at TRACE level (mapped to zap's Debug, zap has no trace tier).
func Trace(entity any, msg string, kv ...any) {
	if minimum > LevelTrace {
		return
	}
	logger.Debug(msg, fields(entity, kv)...)
}

// Debug logs at DEBUG level.
func Debug(entity any, msg string, kv ...any) {
	logger.Debug(msg, fields(entity, kv)...)
}

// Info logs at INFO level.
func Info(entity any, msg string, kv ...any) {
	logger.Info(msg, fields(entity, kv)...)
}

// Warn logs at WARN level.
func Warn(entity any, msg string, kv ...any) {
	logger.Warn(msg, fields(entity, kv)...)
}

// Error logs at ERROR level.
func Error(entity any, msg string, kv ...any) {
	logger.Error(msg, fields(entity, kv)...)
}

// Fatal logs at FATAL level and terminates the process, matching the
// teacher's convention of a hard-exit log level for unrecoverable startup
// failures.
func Fatal(entity any, msg string, kv ...any) {
	logger.Fatal(msg, fields(entity, kv)...)
}
