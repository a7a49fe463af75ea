package utils

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents an enumeration of log levels
type LogLevel int

const (
	Critical LogLevel = 50
	Fatal    LogLevel = Critical
	Error    LogLevel = 40
	Warning  LogLevel = 30
	Info     LogLevel = 20
	Debug    LogLevel = 10
	NotSet   LogLevel = 0
)

// ParseLogLevel maps a level name to its LogLevel, defaulting to Warning.
func ParseLogLevel(name string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warning
	case "error":
		return Error
	case "critical", "fatal":
		return Critical
	default:
		return Warning
	}
}

// Logger writes leveled key-value log lines with a fixed component prefix.
type Logger struct {
	logger *log.Logger

	mu    sync.Mutex
	level LogLevel
}

// NewLogger creates a logger for a component. The level defaults to the
// LOG_LEVEL environment variable, or Warning when unset.
func NewLogger(prefix string, logLevel ...LogLevel) *Logger {
	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if len(logLevel) > 0 {
		level = logLevel[0]
	}
	return &Logger{
		logger: log.New(os.Stdout, "["+prefix+"] ", log.LstdFlags),
		level:  level,
	}
}

// SetLogLevel sets the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = logLevel
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.emit(Info, "INFO", msg, keyvals...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.emit(Error, "ERROR", msg, keyvals...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.emit(Warning, "WARN", msg, keyvals...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.emit(Debug, "DEBUG", msg, keyvals...)
}

func (l *Logger) emit(at LogLevel, tag, msg string, keyvals ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level > at {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", tag, msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
	}
	l.logger.Println(b.String())
}
