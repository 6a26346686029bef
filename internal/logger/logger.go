// Package logger provides the structured logger used across the engine: the
// registry, scheduler, hook bus, and CLI all take a *Logger via constructor
// injection rather than reaching for a package-level global.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
	Layer         string
	Component     string
}

// Logger wraps charmbracelet/log directly with field-sorting and a small, stable API.
type Logger struct {
	base *cblog.Logger
}

// New creates a configured Logger instance based on Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}

	level := cblog.InfoLevel
	if opts.Level != "" {
		parsed, err := cblog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	var formatter cblog.Formatter
	if !opts.HumanReadable {
		formatter = cblog.JSONFormatter
	}

	base := cblog.NewWithOptions(writer, cblog.Options{
		Level:           level,
		ReportTimestamp: true,
		Formatter:       formatter,
	})

	var fields []interface{}
	if opts.Component != "" {
		fields = append(fields, "component", opts.Component)
	}
	if opts.Layer != "" {
		fields = append(fields, "layer", opts.Layer)
	}
	if len(fields) > 0 {
		base = base.With(fields...)
	}

	return &Logger{base: base}, nil
}

// WithFields returns a derived logger that always writes the supplied fields, in
// sorted key order for stable, diffable output.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil || l.base == nil || len(fields) == 0 {
		return l
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}

	return &Logger{base: l.base.With(args...)}
}

// Info writes an informational log entry.
func (l *Logger) Info(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Info(strings.TrimSpace(msg))
}

// Debug writes a debug-level log entry if enabled.
func (l *Logger) Debug(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Debug(strings.TrimSpace(msg))
}

// Warn writes a warning level log entry.
func (l *Logger) Warn(msg string) {
	if l == nil || l.base == nil {
		return
	}
	l.base.Warn(strings.TrimSpace(msg))
}

// Error writes an error log entry including the supplied error context.
func (l *Logger) Error(err error, msg string) {
	if l == nil || l.base == nil {
		return
	}
	if err != nil {
		l.base.Error(strings.TrimSpace(msg), "error", err)
		return
	}
	l.base.Error(strings.TrimSpace(msg))
}

// Noop returns a Logger that discards everything; a safe default for callers
// that don't wire one in explicitly (e.g. library use without a CLI).
func Noop() *Logger {
	l, _ := New(Options{Writer: io.Discard, Level: "fatal"})
	return l
}
