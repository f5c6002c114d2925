package utils

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel represents different logging levels
type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	DISABLED
)

// String returns the string representation of log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case DISABLED:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a level name (case-insensitive) into a LogLevel.
// Unknown names fall back to INFO.
func ParseLogLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "DISABLED", "OFF":
		return DISABLED
	default:
		return INFO
	}
}

// Logger provides leveled logging for a named component
type Logger struct {
	level int32 // atomic access
	name  string
}

var globalLogger = NewLogger("GLOBAL")

func init() {
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		globalLogger.SetLevel(ParseLogLevel(envLevel))
	}
}

// NewLogger creates a new logger with the given name
func NewLogger(name string) *Logger {
	return &Logger{
		level: int32(INFO),
		name:  name,
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	atomic.StoreInt32(&l.level, int32(level))
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return LogLevel(atomic.LoadInt32(&l.level))
}

func (l *Logger) shouldLog(level LogLevel) bool {
	current := l.GetLevel()
	return current != DISABLED && current <= level
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf(DEBUG, format, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf(INFO, format, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf(WARN, format, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(ERROR, format, args...)
	}
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	prefix := fmt.Sprintf("[%s:%s] ", l.name, level.String())
	log.Printf(prefix+format, args...)
}

// Global logging functions for convenience
func Debug(format string, args ...interface{}) {
	globalLogger.Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	globalLogger.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	globalLogger.Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	globalLogger.Error(format, args...)
}

// Component-specific loggers for different parts of the system
var (
	FetcherLogger     = NewLogger("FETCHER")
	RPCLogger         = NewLogger("RPC")
	SchedulerLogger   = NewLogger("SCHEDULER")
	PipelineLogger    = NewLogger("PIPELINE")
	BroadcasterLogger = NewLogger("BROADCASTER")
	MetadataLogger    = NewLogger("METADATA")
	HistoryLogger     = NewLogger("HISTORY")
	ServerLogger      = NewLogger("SERVER")
)

func componentLoggers() []*Logger {
	return []*Logger{
		globalLogger,
		FetcherLogger,
		RPCLogger,
		SchedulerLogger,
		PipelineLogger,
		BroadcasterLogger,
		MetadataLogger,
		HistoryLogger,
		ServerLogger,
	}
}

// SetGlobalLevel sets the level of the global logger and every component logger
func SetGlobalLevel(level LogLevel) {
	for _, l := range componentLoggers() {
		l.SetLevel(level)
	}
}

// InitializeComponentLoggers sets up component loggers from the configured level.
// ENABLE_DEBUG_LOGS=true forces every component to DEBUG.
func InitializeComponentLoggers(level string) {
	if os.Getenv("ENABLE_DEBUG_LOGS") == "true" {
		SetGlobalLevel(DEBUG)
		return
	}

	SetGlobalLevel(ParseLogLevel(level))

	// The fetcher logs every page; keep it quieter unless debugging
	if FetcherLogger.GetLevel() < WARN && ParseLogLevel(level) != DEBUG {
		FetcherLogger.SetLevel(WARN)
	}
}
