// Package log provides the leveled logging abstraction used across ltq,
// following the same Logger/LogLevel contract the teacher package exposes
// from its top-level server.go (Logger interface, LogLevel type): callers
// may plug in their own Logger, and otherwise get a sane default built on
// the standard log package.
package log

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Level represents the logging level.
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Base is the interface a caller-supplied logger must satisfy.
type Base interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
}

// Logger wraps a Base logger with a level filter, mirroring the teacher's
// pattern of wrapping a user-supplied Logger and calling SetLevel on it.
type Logger struct {
	mu    sync.Mutex
	base  Base
	level Level
}

// NewLogger returns a Logger wrapping base, or a default stderr logger if
// base is nil.
func NewLogger(base Base) *Logger {
	if base == nil {
		base = newDefaultLogger()
	}
	return &Logger{base: base, level: InfoLevel}
}

// SetLevel sets the minimum level that will be forwarded to the underlying
// Base logger.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) shouldLog(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

func (l *Logger) Debug(args ...interface{}) {
	if l.shouldLog(DebugLevel) {
		l.base.Debug(args...)
	}
}

func (l *Logger) Info(args ...interface{}) {
	if l.shouldLog(InfoLevel) {
		l.base.Info(args...)
	}
}

func (l *Logger) Warn(args ...interface{}) {
	if l.shouldLog(WarnLevel) {
		l.base.Warn(args...)
	}
}

func (l *Logger) Error(args ...interface{}) {
	if l.shouldLog(ErrorLevel) {
		l.base.Error(args...)
	}
}

func (l *Logger) Fatal(args ...interface{}) {
	if l.shouldLog(FatalLevel) {
		l.base.Fatal(args...)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.shouldLog(DebugLevel) {
		l.base.Debug(fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.shouldLog(InfoLevel) {
		l.base.Info(fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.shouldLog(WarnLevel) {
		l.base.Warn(fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.shouldLog(ErrorLevel) {
		l.base.Error(fmt.Sprintf(format, args...))
	}
}

type defaultLogger struct {
	logger *log.Logger
}

func newDefaultLogger() *defaultLogger {
	return &defaultLogger{logger: log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)}
}

func (l *defaultLogger) logf(level Level, args ...interface{}) {
	l.logger.Printf("%s: %s", level, fmt.Sprint(args...))
}

func (l *defaultLogger) Debug(args ...interface{}) { l.logf(DebugLevel, args...) }
func (l *defaultLogger) Info(args ...interface{})  { l.logf(InfoLevel, args...) }
func (l *defaultLogger) Warn(args ...interface{})  { l.logf(WarnLevel, args...) }
func (l *defaultLogger) Error(args ...interface{}) { l.logf(ErrorLevel, args...) }
func (l *defaultLogger) Fatal(args ...interface{}) {
	l.logf(FatalLevel, args...)
	os.Exit(1)
}
