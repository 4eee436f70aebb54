// Package logging provides the leveled structured logger shared by the
// pipeline, recorder and transports.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// Level represents a logging severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to a Level. The empty string means Info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "info", "":
		return Info, nil
	case "warn", "warning":
		return Warn, nil
	case "error":
		return Error, nil
	default:
		return Level(0), fmt.Errorf("unsupported log level %q", s)
	}
}

// Format controls how log entries are rendered.
type Format int

const (
	Text Format = iota
	JSON
)

// ParseFormat converts a string to a Format. The empty string means Text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "text", "":
		return Text, nil
	default:
		return Format(0), fmt.Errorf("unsupported log format %q", s)
	}
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for building a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Hex builds a Field rendering a byte span as spaced uppercase hex, the
// format used throughout the frame log.
func Hex(key string, b []byte) Field {
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return Field{Key: key, Value: sb.String()}
}

// Logger defines leveled structured logging operations.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

var defaultLogger Logger

// Default returns the process-wide logger.
func Default() Logger {
	if defaultLogger == nil {
		defaultLogger = New(Info, Text, io.Discard)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger = l
	}
}

type baseLogger struct {
	level      Level
	format     Format
	fields     []Field
	underlying *log.Logger
}

// New constructs a Logger with the given level, format, and output writer.
func New(level Level, format Format, out io.Writer) Logger {
	return &baseLogger{
		level:      level,
		format:     format,
		underlying: log.New(out, "", log.LstdFlags),
	}
}

func (l *baseLogger) With(fields ...Field) Logger {
	combined := make([]Field, 0, len(l.fields)+len(fields))
	combined = append(combined, l.fields...)
	combined = append(combined, fields...)
	return &baseLogger{
		level:      l.level,
		format:     l.format,
		fields:     combined,
		underlying: l.underlying,
	}
}

func (l *baseLogger) Debug(msg string, fields ...Field) { l.log(Debug, msg, fields...) }
func (l *baseLogger) Info(msg string, fields ...Field)  { l.log(Info, msg, fields...) }
func (l *baseLogger) Warn(msg string, fields ...Field)  { l.log(Warn, msg, fields...) }
func (l *baseLogger) Error(msg string, fields ...Field) { l.log(Error, msg, fields...) }

func (l *baseLogger) log(level Level, msg string, fields ...Field) {
	if level < l.level {
		return
	}
	all := append(append([]Field{}, l.fields...), fields...)
	if l.format == JSON {
		payload := map[string]any{
			"time":  time.Now().Format(time.RFC3339Nano),
			"level": level.String(),
			"msg":   msg,
		}
		for _, f := range all {
			if f.Key != "" {
				payload[f.Key] = f.Value
			}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			l.underlying.Printf("[ERROR] marshal log payload failed: %v", err)
			return
		}
		l.underlying.Print(string(data))
		return
	}
	if len(all) == 0 {
		l.underlying.Printf("[%s] %s", level.String(), msg)
		return
	}
	var b strings.Builder
	for _, f := range all {
		if f.Key == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", f.Key, f.Value)
	}
	l.underlying.Printf("[%s] %s %s", level.String(), msg, b.String())
}
