// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for emberchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.emberchat/config.toml
//   - ~/.emberchat/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/morganforge/emberchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete emberchat configuration.
type Config struct {
	// StateDir holds backend configs, prompts, and conversations.
	// Empty means the default ~/.emberchat/state.
	StateDir string `toml:"state_dir" json:"state_dir"`

	// DefaultModel is preselected when a backend has no model chosen yet.
	DefaultModel string `toml:"default_model" json:"default_model"`

	// Monitor configuration
	Monitor MonitorConfig `toml:"monitor" json:"monitor"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// MonitorConfig tunes the connectivity monitor.
type MonitorConfig struct {
	// ProbeIntervalSecs is the number of seconds between background
	// reachability probes of the active backend.
	ProbeIntervalSecs int `toml:"probe_interval_secs" json:"probe_interval_secs"`

	// ProbeTimeoutSecs bounds a single probe.
	ProbeTimeoutSecs int `toml:"probe_timeout_secs" json:"probe_timeout_secs"`
}

// UIConfig contains UI preferences.
type UIConfig struct {
	// Theme is the color theme: "dark" or "light"
	Theme string `toml:"theme" json:"theme"`

	// ShowTokenStats toggles the per-message token and latency line.
	ShowTokenStats bool `toml:"show_token_stats" json:"show_token_stats"`
}

// ProbeInterval returns the poll period as a duration.
func (m MonitorConfig) ProbeInterval() time.Duration {
	return time.Duration(m.ProbeIntervalSecs) * time.Second
}

// ProbeTimeout returns the probe bound as a duration.
func (m MonitorConfig) ProbeTimeout() time.Duration {
	return time.Duration(m.ProbeTimeoutSecs) * time.Second
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a config with all default values.
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			ProbeIntervalSecs: 30,
			ProbeTimeoutSecs:  5,
		},
		UI: UIConfig{
			Theme:          "dark",
			ShowTokenStats: true,
		},
	}
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.Monitor.ProbeIntervalSecs <= 0 {
		cfg.Monitor.ProbeIntervalSecs = def.Monitor.ProbeIntervalSecs
	}
	if cfg.Monitor.ProbeTimeoutSecs <= 0 {
		cfg.Monitor.ProbeTimeoutSecs = def.Monitor.ProbeTimeoutSecs
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = def.UI.Theme
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the emberchat configuration directory, honoring the
// EMBERCHAT_HOME override.
func ConfigDir() (string, error) {
	if home := os.Getenv("EMBERCHAT_HOME"); home != "" {
		return home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".emberchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// StateDirPath resolves the state directory, falling back to the default
// under the config dir.
func (c *Config) StateDirPath() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state"), nil
}

// EnsureConfigDir creates the config directory if needed.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration from disk, preferring TOML over JSON, and
// falling back to defaults when neither file exists.
func Load() (*Config, error) {
	cfg := Default()

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finish(cfg)
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finish(cfg)
		}
	}

	return finish(cfg)
}

// finish applies overrides and validation to a loaded or default config.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return err
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return err
	}
	fillDefaults(cfg)
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration as TOML to the default location.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as TOML. The file is written
// atomically with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// =============================================================================
// VALIDATION AND OVERRIDES
// =============================================================================

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Monitor.ProbeIntervalSecs <= 0 {
		return fmt.Errorf("monitor.probe_interval_secs must be positive, got %d", c.Monitor.ProbeIntervalSecs)
	}
	if c.Monitor.ProbeTimeoutSecs <= 0 {
		return fmt.Errorf("monitor.probe_timeout_secs must be positive, got %d", c.Monitor.ProbeTimeoutSecs)
	}
	if c.UI.Theme != "dark" && c.UI.Theme != "light" {
		return fmt.Errorf("ui.theme must be \"dark\" or \"light\", got %q", c.UI.Theme)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported variables:
//   - EMBERCHAT_MODEL: overrides default_model
//   - EMBERCHAT_PROBE_INTERVAL: overrides monitor.probe_interval_secs
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("EMBERCHAT_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if raw := os.Getenv("EMBERCHAT_PROBE_INTERVAL"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			c.Monitor.ProbeIntervalSecs = secs
		}
	}
}
