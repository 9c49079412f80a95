package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func reset(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if err := Initialize(Config{}); err != nil {
			t.Errorf("reset: %v", err)
		}
	})
}

func TestProductionModeIsSilent(t *testing.T) {
	reset(t)
	if err := Initialize(Config{DebugMode: false}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if IsDebugMode() {
		t.Error("expected debug mode off")
	}
	if IsCategoryEnabled(CategoryKernel) {
		t.Error("no category should be enabled in production mode")
	}
	// Must not panic on the no-op logger.
	Kernel("hello %d", 1)
	StartTimer(CategoryKernel, "noop").Stop()
}

func TestCategoryToggles(t *testing.T) {
	reset(t)
	dir := t.TempDir()
	err := Initialize(Config{
		DebugMode:  true,
		Level:      "debug",
		File:       filepath.Join(dir, "agentkb.log"),
		Categories: map[string]bool{"kernel": true, "store": false},
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !IsCategoryEnabled(CategoryKernel) {
		t.Error("kernel should be enabled")
	}
	if IsCategoryEnabled(CategoryStore) {
		t.Error("store should be disabled")
	}
	if !IsCategoryEnabled(CategoryKB) {
		t.Error("unlisted categories default to enabled")
	}

	Kernel("kernel message %s", "visible")
	Store("store message %s", "hidden")
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "agentkb.log"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "kernel message visible") {
		t.Errorf("kernel entry missing from log: %s", out)
	}
	if strings.Contains(out, "store message") {
		t.Errorf("disabled category was written: %s", out)
	}
}

func TestInvalidLevel(t *testing.T) {
	reset(t)
	if err := Initialize(Config{DebugMode: true, Level: "loud"}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestLoggerNamesCategory(t *testing.T) {
	reset(t)
	core, logs := observer.New(zapcore.DebugLevel)
	InitializeWith(zap.New(core))

	Get(CategoryChaining).With("rule", "r1").Debug("fixpoint after %d rounds", 3)
	KBWarn("reload failed")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].LoggerName != "chaining" || entries[0].Message != "fixpoint after 3 rounds" {
		t.Errorf("unexpected entry %+v", entries[0])
	}
	if got := entries[0].ContextMap()["rule"]; got != "r1" {
		t.Errorf("context field rule = %v", got)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].LoggerName != "kb" {
		t.Errorf("unexpected entry %+v", entries[1])
	}
}

func TestTimerThreshold(t *testing.T) {
	reset(t)
	core, logs := observer.New(zapcore.DebugLevel)
	InitializeWith(zap.New(core))

	StartTimer(CategoryKernel, "Infer").StopWithThreshold(-1)
	if logs.FilterLevelExact(zapcore.WarnLevel).Len() != 1 {
		t.Errorf("expected a slow-operation warning, got %v", logs.All())
	}
}

func TestHelpersUseTheirCategory(t *testing.T) {
	reset(t)
	core, logs := observer.New(zapcore.DebugLevel)
	InitializeWith(zap.New(core))

	BootWarn("config %s not found", "x.yaml")
	FactsDebug("store %s merged %d identities", "s1", 2)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].LoggerName != "boot" || entries[0].Level != zapcore.WarnLevel {
		t.Errorf("unexpected boot entry %+v", entries[0])
	}
	if entries[1].LoggerName != "facts" || entries[1].Message != "store s1 merged 2 identities" {
		t.Errorf("unexpected facts entry %+v", entries[1])
	}
}
