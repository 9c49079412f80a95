package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentkb.yaml")
	content := `
engine:
  default_context: main
  max_fixpoint_iterations: 50
logging:
  debug_mode: true
  level: debug
  categories:
    store: false
kb:
  paths: [a.yaml, b.yaml]
  debounce: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Engine.DefaultContext)
	assert.Equal(t, 50, cfg.Engine.MaxFixpointIterations)
	assert.Equal(t, 1000000, cfg.Engine.MaxEnumeration, "unset keys keep defaults")
	assert.True(t, cfg.Engine.StandardLibrary)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.KB.Paths)
	assert.Equal(t, time.Second, cfg.GetDebounce())
	assert.False(t, cfg.Logging.IsCategoryEnabled("store"))
	assert.True(t, cfg.Logging.IsCategoryEnabled("kernel"))
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [unterminated"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agentkb.yaml")
	cfg := DefaultConfig()
	cfg.KB.Paths = []string{"kb.yaml"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty default context", func(c *Config) { c.Engine.DefaultContext = "" }},
		{"zero fixpoint limit", func(c *Config) { c.Engine.MaxFixpointIterations = 0 }},
		{"negative enumeration", func(c *Config) { c.Engine.MaxEnumeration = -1 }},
		{"bad level", func(c *Config) { c.Logging.Level = "chatty" }},
		{"trace without path", func(c *Config) { c.Trace.Enabled = true; c.Trace.DatabasePath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetDebounceFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KB.Debounce = "soon"
	assert.Equal(t, 200*time.Millisecond, cfg.GetDebounce())
}

func TestToLogging(t *testing.T) {
	lc := LoggingConfig{DebugMode: true, Level: "warn", Categories: map[string]bool{"kb": false}}
	got := lc.ToLogging()
	assert.True(t, got.DebugMode)
	assert.Equal(t, "warn", got.Level)
	assert.Equal(t, map[string]bool{"kb": false}, got.Categories)
}

func TestToEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.DefaultContext = "main"
	cfg.Engine.StandardRules = false

	ec := cfg.ToEngine()
	assert.Equal(t, "main", ec.DefaultContext)
	assert.Equal(t, 1000, ec.MaxFixpointIterations)
	assert.True(t, ec.StandardLibrary)
	assert.False(t, ec.StandardRules)
}
