// Package diagnostics implements the one callback surface the core store
// consumes (spec.md §1): a stderr-style diagnostic sink that flow code
// reports through instead of calling perror directly. It is adapted from
// the teacher's internal/logger package — an options-constructed
// log/slog wrapper — trimmed to the handful of levels flow code actually
// emits (warnings on recoverable I/O errors, errors on flow failures).
package diagnostics

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Sink is the diagnostic callback surface. Flow code calls Warnf for
// conditions it recovers from (a stale lock that could not be removed, a
// missing file treated as absent) and Errorf for conditions that cause an operation to
// fail, mirroring the perror-style diagnostics of spec.md §7. Every
// FAIL_QUIETLY_* flag in spec.md §6 is implemented by callers simply not
// calling Sink when the flag is set — Sink itself has no filtering logic.
type Sink interface {
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Option configures a Logger, mirroring the teacher's functional-options
// logger constructor.
type Option func(*config)

type config struct {
	writer io.Writer
	debug  bool
	text   bool
}

// WithWriter sets the destination for diagnostics. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option { return func(c *config) { c.writer = w } }

// WithDebug enables Debugf output; by default it is discarded.
func WithDebug() Option { return func(c *config) { c.debug = true } }

// WithTextFormat selects slog's text handler instead of the default JSON
// handler, matching the teacher's WithFormat("text") option.
func WithTextFormat() Option { return func(c *config) { c.text = true } }

// Logger is the default Sink implementation, backed by log/slog.
type Logger struct {
	log   *slog.Logger
	debug bool
}

var _ Sink = (*Logger)(nil)

// New builds a Logger from the given options. With no options it writes
// JSON records to os.Stderr at warn level and above.
func New(opts ...Option) *Logger {
	c := &config{writer: os.Stderr}
	for _, opt := range opts {
		opt(c)
	}

	level := slog.LevelWarn
	if c.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: true}

	var handler slog.Handler
	if c.text {
		handler = slog.NewTextHandler(c.writer, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(c.writer, handlerOpts)
	}

	return &Logger{log: slog.New(handler), debug: c.debug}
}

// Warnf logs a recoverable condition.
func (l *Logger) Warnf(format string, args ...any) {
	l.log.Warn(fmtMessage(format, args...))
}

// Errorf logs an operation failure.
func (l *Logger) Errorf(format string, args ...any) {
	l.log.Error(fmtMessage(format, args...))
}

// Debugf logs a trace-level message, discarded unless WithDebug was set.
func (l *Logger) Debugf(format string, args ...any) {
	if !l.debug {
		return
	}
	l.log.Debug(fmtMessage(format, args...))
}

func fmtMessage(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Discard is a Sink that drops every message, for callers that want the
// store to stay silent (e.g. under FAIL_QUIETLY_ENOENT / FAIL_QUIETLY_EACCES
// the flow simply never calls Sink, but Discard is convenient for tests).
var Discard Sink = discard{}

type discard struct{}

func (discard) Warnf(string, ...any)  {}
func (discard) Errorf(string, ...any) {}
func (discard) Debugf(string, ...any) {}
