// Package logging wires up the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Options controls the root logger's verbosity and output shape.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // json|pretty
}

// New builds a zerolog.Logger configured for this process.
func New(opts Options) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if opts.Format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", "vsurv-server").
		Logger()
}

// Error logs err with contextual fields.
func Error(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	ev := logger.Error().Err(err)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// ErrorWithStack logs err plus the current stack trace, for unexpected failures.
func ErrorWithStack(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	ev := logger.Error().Err(err).Str("stack", string(debug.Stack()))
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// Panic logs a recovered panic value with a stack trace. Callers decide
// whether to re-panic afterward; this never itself calls os.Exit.
func Panic(logger zerolog.Logger, panicValue any, msg string, fields map[string]any) {
	ev := logger.Error().Interface("panic", panicValue).Str("stack", string(debug.Stack()))
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
