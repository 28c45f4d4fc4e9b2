// Package logging provides categorized file-based logging for tavern.
// Logs are written to <dir>/<date>_<category>.log, one file per category.
// Nothing is written unless Initialize has been called with debug enabled,
// so production runs stay silent.
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
	CategoryBoot     Category = "boot"     // Startup and shutdown
	CategoryStore    Category = "store"    // Task store operations
	CategoryQueue    Category = "queue"    // Claim/complete/fail transitions
	CategoryWorker   Category = "worker"   // Worker loop and pipeline
	CategoryBackend  Category = "backend"  // Chat backend calls
	CategoryTools    Category = "tools"    // Tool dispatch
	CategoryWorld    Category = "world"    // World state mutations
	CategoryProducer Category = "producer" // Enqueue/await operations
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Settings controls logging behavior. Passed in by the config layer so this
// package never reads config files itself.
type Settings struct {
	Enabled    bool
	Dir        string
	Level      string          // debug, info, warn, error
	Categories map[string]bool // nil means all categories enabled
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	settings Settings
	logLevel = LevelInfo
)

// Initialize configures the logging system. Call once at startup.
// A zero Settings value (Enabled=false) makes every logger a no-op.
func Initialize(s Settings) error {
	mu.Lock()
	defer mu.Unlock()

	settings = s
	switch s.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	if !s.Enabled {
		return nil
	}
	if s.Dir == "" {
		return fmt.Errorf("logging enabled but no directory configured")
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

// IsCategoryEnabled returns whether a category currently produces output.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !settings.Enabled {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, ok := settings.Categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger when the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if !categoryEnabledLocked(category) {
		mu.RUnlock()
		return &Logger{category: category}
	}
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(settings.Dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", logPath, err)
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

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message. Always written if the logger has a file.
func (l *Logger) Error(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Convenience functions for the common info/debug pair per category.

func Boot(format string, args ...any)     { Get(CategoryBoot).Info(format, args...) }
func Store(format string, args ...any)    { Get(CategoryStore).Info(format, args...) }
func Queue(format string, args ...any)    { Get(CategoryQueue).Info(format, args...) }
func Worker(format string, args ...any)   { Get(CategoryWorker).Info(format, args...) }
func Backend(format string, args ...any)  { Get(CategoryBackend).Info(format, args...) }
func Tools(format string, args ...any)    { Get(CategoryTools).Info(format, args...) }
func World(format string, args ...any)    { Get(CategoryWorld).Info(format, args...) }
func Producer(format string, args ...any) { Get(CategoryProducer).Info(format, args...) }

func StoreDebug(format string, args ...any)    { Get(CategoryStore).Debug(format, args...) }
func QueueDebug(format string, args ...any)    { Get(CategoryQueue).Debug(format, args...) }
func WorkerDebug(format string, args ...any)   { Get(CategoryWorker).Debug(format, args...) }
func BackendDebug(format string, args ...any)  { Get(CategoryBackend).Debug(format, args...) }
func ToolsDebug(format string, args ...any)    { Get(CategoryTools).Debug(format, args...) }
func WorldDebug(format string, args ...any)    { Get(CategoryWorld).Debug(format, args...) }
func ProducerDebug(format string, args ...any) { Get(CategoryProducer).Debug(format, args...) }

// Timer helps measure operation duration.
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
