// Package plog provides the structured logger used across the runtime,
// wrapping github.com/charmbracelet/log with accumulated fields: With and
// WithRequest derive child loggers whose fields (such as a request ID) are
// attached to every line they emit. The scheduler does not derive
// per-request loggers; its RSCs log through the scheduler's own logger.
package plog

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	cblog "github.com/charmbracelet/log"
)

// Options configures a Logger.
type Options struct {
	Writer       io.Writer
	Level        string
	TimeFormat   string
	ReportCaller bool
	Formatter    cblog.Formatter
	Component    string
	Fields       map[string]interface{}
}

// Logger is a structured logger with accumulated fields.
type Logger struct {
	logger    *cblog.Logger
	fields    []interface{}
	component string
}

// New creates a configured Logger.
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

	base := cblog.NewWithOptions(writer, cblog.Options{
		Level:           level,
		TimeFormat:      opts.TimeFormat,
		ReportTimestamp: true,
		ReportCaller:    opts.ReportCaller,
		Formatter:       opts.Formatter,
		Fields:          mapToFields(opts.Fields),
	})

	var fields []interface{}
	if opts.Component != "" {
		fields = append(fields, "component", opts.Component)
	}

	return &Logger{logger: base, fields: fields, component: opts.Component}, nil
}

// Debug emits a debug log entry.
func (l *Logger) Debug(msg string, fields ...interface{}) { l.log(cblog.DebugLevel, msg, fields...) }

// Info emits an info log entry.
func (l *Logger) Info(msg string, fields ...interface{}) { l.log(cblog.InfoLevel, msg, fields...) }

// Warn emits a warning log entry.
func (l *Logger) Warn(msg string, fields ...interface{}) { l.log(cblog.WarnLevel, msg, fields...) }

// Error emits an error log entry.
func (l *Logger) Error(msg string, fields ...interface{}) { l.log(cblog.ErrorLevel, msg, fields...) }

// With derives a child logger carrying additional persistent fields.
func (l *Logger) With(fields ...interface{}) *Logger {
	if l == nil {
		return nil
	}
	next := make([]interface{}, len(l.fields), len(l.fields)+len(fields))
	copy(next, l.fields)
	next = append(next, fields...)
	return &Logger{logger: l.logger, fields: next, component: l.component}
}

// WithRequest derives a child logger tagged with a request ID, so every
// line it emits carries a request_id field.
func (l *Logger) WithRequest(requestID string) *Logger {
	return l.With("request_id", requestID)
}

func (l *Logger) log(level cblog.Level, msg string, fields ...interface{}) {
	if l == nil || l.logger == nil {
		return
	}
	payload := make([]interface{}, 0, len(l.fields)+len(fields))
	payload = append(payload, l.fields...)
	payload = append(payload, fields...)

	switch level {
	case cblog.DebugLevel:
		l.logger.Debug(msg, payload...)
	case cblog.WarnLevel:
		l.logger.Warn(msg, payload...)
	case cblog.ErrorLevel:
		l.logger.Error(msg, payload...)
	default:
		l.logger.Info(msg, payload...)
	}
}

func mapToFields(input map[string]interface{}) []interface{} {
	if len(input) == 0 {
		return nil
	}
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := make([]interface{}, 0, len(input)*2)
	for _, k := range keys {
		res = append(res, k, input[k])
	}
	return res
}

// Nop returns a Logger that discards everything, for tests and contexts
// where no writer has been configured yet.
func Nop() *Logger {
	l, _ := New(Options{Writer: io.Discard})
	return l
}
