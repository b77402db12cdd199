// Package config loads the daemon/client's ambient settings from
// ~/.h2mux/config.yaml (§4.7), adapted from the teacher's yaml.v3-backed
// Load/LoadFrom pattern: missing file is not an error, defaults apply.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"h2mux/internal/statedir"
	"h2mux/internal/termemu"
)

// Config is the daemon/client's reloadable configuration surface. The
// push loop's coalescing windows (§4.4) are not here: spec.md gives them
// exact fixed values, so they're package constants in daemonsrv, not a
// user-settable field.
type Config struct {
	ResizeStrategy     string `yaml:"resize_strategy"`
	MaxScrollbackLines int    `yaml:"max_scrollback_lines"`
	UpdateCheckURL     string `yaml:"update_check_url"`
	LogLevel           string `yaml:"log_level"`
}

// Default returns the configuration used when no config file is present.
func Default() Config {
	return Config{
		ResizeStrategy:     "fixed",
		MaxScrollbackLines: 10000,
		UpdateCheckURL:     "",
		LogLevel:           "info",
	}
}

// Load reads ~/.h2mux/config.yaml. A missing file yields Default() with
// no error.
func Load() (Config, error) {
	return LoadFrom(statedir.ConfigPath())
}

// LoadFrom reads the config from an explicit path (used by Load and by
// tests).
func LoadFrom(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.MaxScrollbackLines <= 0 {
		cfg.MaxScrollbackLines = Default().MaxScrollbackLines
	}
	return cfg, nil
}

// EmulatorResizeStrategy maps the config's string setting to the
// termemu.ResizeStrategy the emulator actually takes. Unrecognized
// values default to Fixed (§9 open question: default to Fixed when in
// doubt).
func (c Config) EmulatorResizeStrategy() termemu.ResizeStrategy {
	if c.ResizeStrategy == "sync" {
		return termemu.ResizeSync
	}
	return termemu.ResizeFixed
}
