// Package logging provides structured logging for FieldClock.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// LogLevel represents a log level.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Logger provides structured JSON logging. Loggers derived with
// WithComponent share one mutex so interleaved writes stay line-atomic.
type Logger struct {
	mu        *sync.Mutex
	out       io.Writer
	minLevel  LogLevel
	component string
}

var (
	global *Logger
	once   sync.Once
)

// Init initializes the global logger.
func Init(out io.Writer, minLevel LogLevel) {
	once.Do(func() {
		global = &Logger{
			mu:       &sync.Mutex{},
			out:      out,
			minLevel: minLevel,
		}
	})
}

// Get returns the global logger instance.
func Get() *Logger {
	if global == nil {
		Init(os.Stdout, LevelInfo)
	}
	return global
}

// WithComponent returns a logger that tags every entry with a component name.
// The returned logger shares the output and level of its parent.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		mu:        l.mu,
		out:       l.out,
		minLevel:  l.minLevel,
		component: name,
	}
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// write emits one entry at the given level.
func (l *Logger) write(level LogLevel, message string, err error, context map[string]interface{}) {
	if levelRank[level] < levelRank[l.minLevel] {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Component: l.component,
		Message:   message,
		Context:   context,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	data, jsonErr := json.Marshal(entry)
	if jsonErr != nil {
		log.Printf("Failed to marshal log entry: %v", jsonErr)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, context ...map[string]interface{}) {
	l.write(LevelDebug, message, nil, mergeContext(context...))
}

// Info logs an info message.
func (l *Logger) Info(message string, context ...map[string]interface{}) {
	l.write(LevelInfo, message, nil, mergeContext(context...))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, context ...map[string]interface{}) {
	l.write(LevelWarn, message, nil, mergeContext(context...))
}

// Error logs an error message.
func (l *Logger) Error(message string, err error, context ...map[string]interface{}) {
	l.write(LevelError, message, err, mergeContext(context...))
}

// mergeContext flattens multiple context maps into one.
func mergeContext(context ...map[string]interface{}) map[string]interface{} {
	if len(context) == 0 {
		return nil
	}
	if len(context) == 1 {
		return context[0]
	}
	merged := make(map[string]interface{})
	for _, c := range context {
		for k, v := range c {
			merged[k] = v
		}
	}
	return merged
}

// Convenience functions using the global logger

func Debug(message string, context ...map[string]interface{}) {
	Get().Debug(message, context...)
}

func Info(message string, context ...map[string]interface{}) {
	Get().Info(message, context...)
}

func Warn(message string, context ...map[string]interface{}) {
	Get().Warn(message, context...)
}

func Error(message string, err error, context ...map[string]interface{}) {
	Get().Error(message, err, context...)
}
