package config

import (
	"os"
	"path/filepath"
	"testing"

	"h2mux/internal/termemu"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFromParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "resize_strategy: sync\nmax_scrollback_lines: 5000\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ResizeStrategy != "sync" || cfg.MaxScrollbackLines != 5000 || cfg.LogLevel != "debug" {
		t.Fatalf("got %+v", cfg)
	}
	if cfg.EmulatorResizeStrategy() != termemu.ResizeSync {
		t.Fatal("expected sync strategy to map to termemu.ResizeSync")
	}
}

func TestEmulatorResizeStrategyDefaultsToFixed(t *testing.T) {
	cfg := Default()
	if cfg.EmulatorResizeStrategy() != termemu.ResizeFixed {
		t.Fatal("expected default resize strategy to be Fixed")
	}
}
