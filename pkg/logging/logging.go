// Package logging provides the leveled logger shared by the engines, the
// API server and the CLI. It writes through the standard library log package
// and satisfies pebble.Logger and pinned.Logger.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel converts a config level name ("debug", "info", "warn",
// "error") into a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", name)
	}
}

// Logger writes leveled, prefixed lines.
type Logger struct {
	out   *log.Logger
	level Level
	exit  func(int)
}

// New creates a logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		out:   log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		level: level,
		exit:  os.Exit,
	}
}

// Default returns an info-level logger on stderr.
func Default() *Logger {
	return New(os.Stderr, LevelInfo)
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

// With returns a copy of the logger whose lines carry the given component name.
func (l *Logger) With(component string) *Logger {
	prefix := l.out.Prefix() + component + ": "
	return &Logger{
		out:   log.New(l.out.Writer(), prefix, l.out.Flags()),
		level: l.level,
		exit:  l.exit,
	}
}

// Level returns the minimum level the logger emits.
func (l *Logger) Level() Level {
	return l.level
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	_ = l.out.Output(3, level.String()+" "+fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, format, args...)
}

// Fatalf logs regardless of level and exits the process.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	_ = l.out.Output(2, "FATAL "+fmt.Sprintf(format, args...))
	l.exit(1)
}
