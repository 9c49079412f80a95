package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"agentkb/internal/core"
)

// Config holds all agentkb configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
	Trace   TraceConfig   `yaml:"trace"`
	KB      KBConfig      `yaml:"kb"`
}

// EngineConfig configures the inference engine.
type EngineConfig struct {
	DefaultContext        string `yaml:"default_context"`
	MaxFixpointIterations int    `yaml:"max_fixpoint_iterations"` // forward-chaining restarts per update
	MaxEnumeration        int    `yaml:"max_enumeration"`         // backward-chaining combinations per binding
	StandardLibrary       bool   `yaml:"standard_library"`
	StandardRules         bool   `yaml:"standard_rules"`
}

// TraceConfig configures the sqlite inference trace store.
type TraceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// KBConfig configures knowledge-base loading.
type KBConfig struct {
	Paths    []string `yaml:"paths,omitempty"`
	Debounce string   `yaml:"debounce"` // watcher debounce, e.g. "200ms"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			DefaultContext:        "default",
			MaxFixpointIterations: 1000,
			MaxEnumeration:        1000000,
			StandardLibrary:       true,
			StandardRules:         true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Trace: TraceConfig{
			Enabled:      false,
			DatabasePath: filepath.Join(".agentkb", "traces.db"),
		},
		KB: KBConfig{
			Debounce: "200ms",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies AGENTKB_* environment variables.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("AGENTKB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if v := os.Getenv("AGENTKB_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
	if path := os.Getenv("AGENTKB_TRACE_DB"); path != "" {
		c.Trace.DatabasePath = path
		c.Trace.Enabled = true
	}
	if v := os.Getenv("AGENTKB_MAX_FIXPOINT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.MaxFixpointIterations = n
		}
	}
}

// ToEngine converts the engine section to core.Config.
func (c *Config) ToEngine() core.Config {
	return core.Config{
		DefaultContext:        c.Engine.DefaultContext,
		MaxFixpointIterations: c.Engine.MaxFixpointIterations,
		MaxEnumeration:        c.Engine.MaxEnumeration,
		StandardLibrary:       c.Engine.StandardLibrary,
		StandardRules:         c.Engine.StandardRules,
	}
}

// GetDebounce returns the watcher debounce interval.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.KB.Debounce)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond
	}
	return d
}

var validLevels = []string{"debug", "info", "warn", "warning", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.DefaultContext == "" {
		return fmt.Errorf("engine.default_context must not be empty")
	}
	if c.Engine.MaxFixpointIterations <= 0 {
		return fmt.Errorf("engine.max_fixpoint_iterations must be positive, got %d", c.Engine.MaxFixpointIterations)
	}
	if c.Engine.MaxEnumeration <= 0 {
		return fmt.Errorf("engine.max_enumeration must be positive, got %d", c.Engine.MaxEnumeration)
	}
	if c.Logging.Level != "" {
		valid := false
		for _, l := range validLevels {
			if c.Logging.Level == l {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, validLevels)
		}
	}
	if c.Trace.Enabled && c.Trace.DatabasePath == "" {
		return fmt.Errorf("trace.database_path required when tracing is enabled")
	}
	return nil
}
