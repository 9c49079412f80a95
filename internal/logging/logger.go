// Package logging provides config-driven categorized logging for agentkb.
// Every category gets its own named zap logger. Logging is controlled by
// debug_mode in the logging config - when false, every logger is a no-op.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and configuration
	CategoryKernel   Category = "kernel"   // Engine operations (add_fact, add_rule, infer)
	CategoryFacts    Category = "facts"    // Fact store and logic-variable directory
	CategoryRules    Category = "rules"    // Rule store, congruence generation
	CategoryChaining Category = "chaining" // Forward fixpoint and backward search
	CategoryStore    Category = "store"    // Trace store (sqlite)
	CategoryKB       Category = "kb"       // Knowledge-base loading and watching
)

// Config mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Config struct {
	DebugMode  bool
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // empty means stderr
	Categories map[string]bool // per-category toggles
}

// Logger wraps a sugared zap logger for one category
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	cfg     Config
	base    *zap.Logger
	loggers = make(map[Category]*Logger)
)

// Initialize builds the shared zap logger from c. It may be called again to
// reconfigure; existing category loggers are dropped.
func Initialize(c Config) error {
	mu.Lock()
	defer mu.Unlock()

	if base != nil {
		_ = base.Sync()
	}
	cfg = c
	base = nil
	loggers = make(map[Category]*Logger)

	if !c.DebugMode {
		return nil // Silent no-op in production mode
	}

	zc := zap.NewProductionConfig()
	if strings.EqualFold(c.Format, "console") || strings.EqualFold(c.Format, "text") {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(levelOrDefault(c.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if c.File != "" {
		zc.OutputPaths = []string{c.File}
	}
	zc.DisableStacktrace = true

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	base = l

	boot := base.Named(string(CategoryBoot)).Sugar()
	boot.Infof("=== agentkb logging initialized ===")
	boot.Infof("Log level: %s", level)
	if len(c.Categories) > 0 {
		enabled := 0
		for _, on := range c.Categories {
			if on {
				enabled++
			}
		}
		boot.Infof("Enabled categories: %d/%d", enabled, len(c.Categories))
	} else {
		boot.Infof("All categories enabled (no category filter)")
	}
	return nil
}

// InitializeWith installs an existing zap logger, enabling every category.
// Tests use it with zaptest/observer cores.
func InitializeWith(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	cfg = Config{DebugMode: true}
	base = l
	loggers = make(map[Category]*Logger)
}

func levelOrDefault(level string) string {
	switch strings.ToLower(level) {
	case "":
		return "info"
	case "warning":
		return "warn"
	}
	return strings.ToLower(level)
}

// IsDebugMode returns whether logging is enabled at all
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return cfg.DebugMode && base != nil
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if !cfg.DebugMode || base == nil {
		return false
	}
	if cfg.Categories == nil {
		return true
	}
	enabled, exists := cfg.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	enabled := categoryEnabled(category)
	mu.RUnlock()

	if !enabled {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	if base == nil {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a child logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered entries (call at shutdown)
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootWarn logs warning to the boot category
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }

// Kernel logs to the kernel category
func Kernel(format string, args ...interface{}) { Get(CategoryKernel).Info(format, args...) }

// KernelDebug logs debug to the kernel category
func KernelDebug(format string, args ...interface{}) { Get(CategoryKernel).Debug(format, args...) }

// KernelWarn logs warning to the kernel category
func KernelWarn(format string, args ...interface{}) { Get(CategoryKernel).Warn(format, args...) }

// FactsDebug logs debug to the facts category
func FactsDebug(format string, args ...interface{}) { Get(CategoryFacts).Debug(format, args...) }

// RulesDebug logs debug to the rules category
func RulesDebug(format string, args ...interface{}) { Get(CategoryRules).Debug(format, args...) }

// ChainingDebug logs debug to the chaining category
func ChainingDebug(format string, args ...interface{}) { Get(CategoryChaining).Debug(format, args...) }

// ChainingWarn logs warning to the chaining category
func ChainingWarn(format string, args ...interface{}) { Get(CategoryChaining).Warn(format, args...) }

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// KB logs to the kb category
func KB(format string, args ...interface{}) { Get(CategoryKB).Info(format, args...) }

// KBDebug logs debug to the kb category
func KBDebug(format string, args ...interface{}) { Get(CategoryKB).Debug(format, args...) }

// KBWarn logs warning to the kb category
func KBWarn(format string, args ...interface{}) { Get(CategoryKB).Warn(format, args...) }

// KBError logs error to the kb category
func KBError(format string, args ...interface{}) { Get(CategoryKB).Error(format, args...) }

// =============================================================================
// TIMING
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
