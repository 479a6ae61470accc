// Package logging provides config-driven categorized file-based logging for
// convo. Logs are written to <state dir>/logs/ with one rotating file per
// category. Logging is controlled by the "logging" section of config.json;
// when debug_mode is false nothing is written, so the interactive TUI stays
// silent by default.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup and CLI wiring
	CategorySession Category = "session" // Chat state manager
	CategoryStore   Category = "store"   // Local persistence
	CategoryAPI     Category = "api"     // Backend REST calls
	CategoryAuth    Category = "auth"    // Token holder, login/refresh
	CategoryUI      Category = "ui"      // TUI events
)

// Config controls what gets logged. It mirrors the "logging" section of
// config.json so this package does not import internal/config.
type Config struct {
	DebugMode  bool            `json:"debug_mode" yaml:"debug_mode"`
	Categories map[string]bool `json:"categories" yaml:"categories"`
	Level      string          `json:"level" yaml:"level"`
}

type configFile struct {
	Logging Config `json:"logging"`
}

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger writes category-tagged lines into its rotating log file.
type Logger struct {
	category Category
	logger   *log.Logger
	sink     *lumberjack.Logger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	config    Config
	configMu  sync.RWMutex
	logLevel  int
)

// Initialize sets up the logging directory and reads the logging section of
// config.json under the given state directory (usually ~/.convo). Should be
// called once at startup; a missing config means production mode (no logs).
func Initialize(stateDir string) error {
	if stateDir == "" {
		return fmt.Errorf("state directory required")
	}
	logsDir = filepath.Join(stateDir, "logs")

	if err := loadConfig(filepath.Join(stateDir, "config.json")); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: could not load config: %v\n", err)
		config.DebugMode = false
	}
	if !config.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	Get(CategoryBoot).Info("logging initialized: dir=%s level=%s", logsDir, config.Level)
	return nil
}

func loadConfig(path string) error {
	configMu.Lock()
	defer configMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			config.DebugMode = false
			return nil
		}
		return err
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	config = cf.Logging

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	return nil
}

// Override replaces the loaded config. Tests use this to force-enable a
// category without a config file on disk.
func Override(cfg Config, dir string) {
	configMu.Lock()
	config = cfg
	configMu.Unlock()
	if dir != "" {
		logsDir = dir
	}
}

// IsCategoryEnabled returns whether a category currently produces output.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for a category. Disabled categories
// get a no-op logger so call sites never need to branch.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
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
	if l, ok := loggers[category]; ok {
		return l
	}

	sink := &lumberjack.Logger{
		Filename:   filepath.Join(logsDir, fmt.Sprintf("%s.log", category)),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	l := &Logger{
		category: category,
		sink:     sink,
		logger:   log.New(sink, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.sink != nil {
			_ = l.sink.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - quick logging without getting a logger first
// =============================================================================

func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

func SessionWarn(format string, args ...interface{}) { Get(CategorySession).Warn(format, args...) }

func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func StoreWarn(format string, args ...interface{}) { Get(CategoryStore).Warn(format, args...) }

func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

func Auth(format string, args ...interface{}) { Get(CategoryAuth).Info(format, args...) }

func AuthWarn(format string, args ...interface{}) { Get(CategoryAuth).Warn(format, args...) }

func UI(format string, args ...interface{}) { Get(CategoryUI).Info(format, args...) }

func UIDebug(format string, args ...interface{}) { Get(CategoryUI).Debug(format, args...) }

// Timer helps measure operation duration for slow-path diagnostics.
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
