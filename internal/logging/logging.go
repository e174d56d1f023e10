package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger is a deliberately small, framework-agnostic logging interface.
// Every component takes one by injection so implementations can be swapped
// without touching call sites.
type Logger interface {
	// Debug logs a debug-level message.
	Debug(msg string, fields ...Field)

	// Info logs an informational message.
	Info(msg string, fields ...Field)

	// Warn logs a warning.
	Warn(msg string, fields ...Field)

	// Error logs an error.
	Error(msg string, fields ...Field)

	// With returns a child logger with persistent fields.
	With(fields ...Field) Logger
}

// Field is a simple key/value pair for structured logging fields.
type Field struct {
	Key   string
	Value any
}

// StdoutLogger is a tiny structured logger that prints JSON lines.
// It is safe for concurrent use.
type StdoutLogger struct {
	component string
	base      []Field
	out       io.Writer
	mu        *sync.Mutex
}

// NewStdoutLogger creates a StdoutLogger. component is optional and is
// included on every entry when set.
func NewStdoutLogger(component string) *StdoutLogger {
	return &StdoutLogger{component: component, out: os.Stdout, mu: &sync.Mutex{}}
}

func (s *StdoutLogger) log(level string, msg string, fields ...Field) {
	type outEntry struct {
		Level     string         `json:"level"`
		Msg       string         `json:"msg"`
		Component string         `json:"component,omitempty"`
		Time      string         `json:"time"`
		Fields    map[string]any `json:"fields,omitempty"`
	}
	m := make(map[string]any, len(s.base)+len(fields))
	for _, f := range s.base {
		m[f.Key] = f.Value
	}
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	entry := outEntry{
		Level:     level,
		Msg:       msg,
		Component: s.component,
		Time:      time.Now().UTC().Format(time.RFC3339),
		Fields:    m,
	}
	enc, err := json.Marshal(entry)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// Fallback formatting if a field value is not marshalable.
		fmt.Fprintf(s.out, "%s %s %v\n", level, msg, m)
		return
	}
	fmt.Fprintln(s.out, string(enc))
}

func (s *StdoutLogger) Debug(msg string, fields ...Field) { s.log("debug", msg, fields...) }
func (s *StdoutLogger) Info(msg string, fields ...Field)  { s.log("info", msg, fields...) }
func (s *StdoutLogger) Warn(msg string, fields ...Field)  { s.log("warn", msg, fields...) }
func (s *StdoutLogger) Error(msg string, fields ...Field) { s.log("error", msg, fields...) }

// With returns a child logger carrying the given persistent fields. A
// "component" field overrides the component name instead of duplicating it.
func (s *StdoutLogger) With(fields ...Field) Logger {
	child := &StdoutLogger{component: s.component, out: s.out, mu: s.mu}
	child.base = append(child.base, s.base...)
	for _, f := range fields {
		if f.Key == "component" {
			if str, ok := f.Value.(string); ok {
				child.component = str
				continue
			}
		}
		child.base = append(child.base, f)
	}
	return child
}

// NopLogger discards everything. Useful as a default in tests and optional
// dependencies.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (n NopLogger) With(...Field) Logger { return n }
