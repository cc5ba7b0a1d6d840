package tradewire

import (
	"log/slog"

	"github.com/rs/zerolog"
)

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
// Applications can provide their own implementation or use the default slog logger.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface, so
// applications already running zerolog can plug it in via LoggerOption.
type ZerologLogger struct {
	l zerolog.Logger
}

// NewZerologLogger wraps the given zerolog logger.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{l: l}
}

// Debug implements Logger.
func (z *ZerologLogger) Debug(msg string, args ...any) { z.emit(z.l.Debug(), msg, args) }

// Info implements Logger.
func (z *ZerologLogger) Info(msg string, args ...any) { z.emit(z.l.Info(), msg, args) }

// Warn implements Logger.
func (z *ZerologLogger) Warn(msg string, args ...any) { z.emit(z.l.Warn(), msg, args) }

// Error implements Logger.
func (z *ZerologLogger) Error(msg string, args ...any) { z.emit(z.l.Error(), msg, args) }

// emit attaches slog-style key-value pairs to the event. Keys that are not
// strings and trailing unpaired values are skipped.
func (z *ZerologLogger) emit(e *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	e.Msg(msg)
}
