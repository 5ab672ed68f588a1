// Package logging provides categorized file-based logging for tickerlab.
// Logs are written to <data-dir>/logs/ with separate files per category.
// Logging is off until Configure is called with debug enabled; every call is
// a silent no-op in production mode.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config resolution
	CategoryAPI      Category = "api"      // Remote model calls
	CategoryPipeline Category = "pipeline" // Workflow orchestration, stage transitions
	CategoryStore    Category = "store"    // Durable/local session stores
	CategorySession  Category = "session"  // In-memory history reconciliation
	CategoryUsage    Category = "usage"    // Token usage ledger
	CategoryUI       Category = "ui"       // Terminal UI events
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex

	settingsMu sync.RWMutex
	logsDir    string
	debugMode  bool
	logLevel   = LevelInfo
)

// Configure sets up the logging directory and level. Call once at startup
// after the config is resolved; dir is the application data directory.
// With debug false this is a no-op and no files are ever created.
func Configure(dir string, debug bool, level string) error {
	settingsMu.Lock()
	debugMode = debug
	switch level {
	case "debug":
		logLevel = LevelDebug
	case "info", "":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	logsDir = filepath.Join(dir, "logs")
	settingsMu.Unlock()

	if !debug {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== tickerlab logging initialized ===")
	boot.Info("Logs directory: %s", filepath.Join(dir, "logs"))
	boot.Info("Log level: %s", level)
	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return debugMode
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger when debug mode is disabled.
func Get(category Category) *Logger {
	settingsMu.RLock()
	enabled, dir := debugMode, logsDir
	settingsMu.RUnlock()
	if !enabled || dir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Close closes all open log files. Called on shutdown.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for cat, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
		delete(loggers, cat)
	}
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// Timer tracks operation duration for performance logging.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

// Convenience functions for common categories

func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

func APIWarn(format string, args ...interface{}) {
	Get(CategoryAPI).Warn(format, args...)
}

func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Error(format, args...)
}

func Pipeline(format string, args ...interface{}) {
	Get(CategoryPipeline).Info(format, args...)
}

func PipelineDebug(format string, args ...interface{}) {
	Get(CategoryPipeline).Debug(format, args...)
}

func PipelineWarn(format string, args ...interface{}) {
	Get(CategoryPipeline).Warn(format, args...)
}

func PipelineError(format string, args ...interface{}) {
	Get(CategoryPipeline).Error(format, args...)
}

func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

func Usage(format string, args ...interface{}) {
	Get(CategoryUsage).Info(format, args...)
}

func UsageDebug(format string, args ...interface{}) {
	Get(CategoryUsage).Debug(format, args...)
}
