// Package logger provides a GORM-style logging interface for relayhub.
// Components depend on the Logger interface; the default implementation
// writes structured JSON through zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// Silent suppresses all log output.
	Silent LogLevel = iota + 1
	// Error only logs error messages.
	Error
	// Warn logs warnings and errors.
	Warn
	// Info logs informational messages, warnings, and errors.
	Info
	// Debug logs all messages including debug information.
	Debug
)

// ParseLevel maps a textual level ("debug", "info", "warn", "error", "silent")
// to a LogLevel. Unknown values fall back to Info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "off", "none":
		return Silent
	case "error":
		return Error
	case "warn", "warning":
		return Warn
	case "debug", "trace":
		return Debug
	default:
		return Info
	}
}

// Logger is the interface that wraps the basic logging methods.
// Arguments after msg are slog-style key/value pairs.
type Logger interface {
	// LogMode sets the log level and returns a new logger instance.
	LogMode(level LogLevel) Logger
	// Info logs an informational message with structured key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning message with structured key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error message with structured key-value pairs.
	Error(msg string, args ...any)
	// Debug logs a debug message with structured key-value pairs.
	Debug(msg string, args ...any)
}

// ZerologLogger is the default implementation of the Logger interface.
type ZerologLogger struct {
	logger zerolog.Logger
	level  LogLevel
}

// NewZerologLogger creates a logger that writes JSON lines to w.
// component is attached to every entry.
func NewZerologLogger(w io.Writer, level LogLevel, component string) Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	if component != "" {
		zl = zl.With().Str("component", component).Logger()
	}
	return &ZerologLogger{logger: zl, level: level}
}

// FromZerolog wraps an existing zerolog.Logger.
func FromZerolog(zl zerolog.Logger, level LogLevel) Logger {
	return &ZerologLogger{logger: zl, level: level}
}

// LogMode sets the log level and returns a new logger instance.
func (l *ZerologLogger) LogMode(level LogLevel) Logger {
	newLogger := *l
	newLogger.level = level
	return &newLogger
}

// Info logs an informational message.
func (l *ZerologLogger) Info(msg string, args ...any) {
	if l.level >= Info {
		l.write(l.logger.Info(), msg, args)
	}
}

// Warn logs a warning message.
func (l *ZerologLogger) Warn(msg string, args ...any) {
	if l.level >= Warn {
		l.write(l.logger.Warn(), msg, args)
	}
}

// Error logs an error message.
func (l *ZerologLogger) Error(msg string, args ...any) {
	if l.level >= Error {
		l.write(l.logger.Error(), msg, args)
	}
}

// Debug logs a debug message.
func (l *ZerologLogger) Debug(msg string, args ...any) {
	if l.level >= Debug {
		l.write(l.logger.Debug(), msg, args)
	}
}

func (l *ZerologLogger) write(event *zerolog.Event, msg string, args []any) {
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			event = event.Str(key, "(no value)")
			break
		}
		switch v := args[i+1].(type) {
		case error:
			event = event.AnErr(key, v)
		default:
			event = event.Interface(key, v)
		}
	}
	event.Msg(msg)
}

// discardLogger is a logger that discards all output.
type discardLogger struct{}

// LogMode returns the discard logger itself.
func (d *discardLogger) LogMode(LogLevel) Logger { return d }

// Info does nothing.
func (d *discardLogger) Info(string, ...any) {}

// Warn does nothing.
func (d *discardLogger) Warn(string, ...any) {}

// Error does nothing.
func (d *discardLogger) Error(string, ...any) {}

// Debug does nothing.
func (d *discardLogger) Debug(string, ...any) {}

// Discard is a logger that discards all output.
var Discard Logger = &discardLogger{}

// New returns a default logger that writes to stdout.
func New() Logger {
	return NewZerologLogger(os.Stdout, Info, "relayhub")
}
