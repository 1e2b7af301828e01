// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Monitor.ProbeIntervalSecs != 30 {
		t.Errorf("ProbeIntervalSecs = %d, want 30", cfg.Monitor.ProbeIntervalSecs)
	}
	if cfg.Monitor.ProbeTimeoutSecs != 5 {
		t.Errorf("ProbeTimeoutSecs = %d, want 5", cfg.Monitor.ProbeTimeoutSecs)
	}
	if cfg.UI.Theme != "dark" {
		t.Errorf("Theme = %q, want dark", cfg.UI.Theme)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Setenv("EMBERCHAT_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Monitor.ProbeIntervalSecs != 30 {
		t.Errorf("ProbeIntervalSecs = %d, want default 30", cfg.Monitor.ProbeIntervalSecs)
	}
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EMBERCHAT_HOME", dir)

	content := `
default_model = "llama3.2:3b"

[monitor]
probe_interval_secs = 60

[ui]
theme = "light"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultModel != "llama3.2:3b" {
		t.Errorf("DefaultModel = %q, want llama3.2:3b", cfg.DefaultModel)
	}
	if cfg.Monitor.ProbeIntervalSecs != 60 {
		t.Errorf("ProbeIntervalSecs = %d, want 60", cfg.Monitor.ProbeIntervalSecs)
	}
	// Omitted values fall back to defaults.
	if cfg.Monitor.ProbeTimeoutSecs != 5 {
		t.Errorf("ProbeTimeoutSecs = %d, want default 5", cfg.Monitor.ProbeTimeoutSecs)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("Theme = %q, want light", cfg.UI.Theme)
	}
}

func TestLoad_JSONFallback(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EMBERCHAT_HOME", dir)

	content := `{"default_model": "mistral:7b", "monitor": {"probe_interval_secs": 15}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultModel != "mistral:7b" {
		t.Errorf("DefaultModel = %q, want mistral:7b", cfg.DefaultModel)
	}
	if cfg.Monitor.ProbeIntervalSecs != 15 {
		t.Errorf("ProbeIntervalSecs = %d, want 15", cfg.Monitor.ProbeIntervalSecs)
	}
}

func TestLoad_TOMLWinsOverJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EMBERCHAT_HOME", dir)

	os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`default_model = "from-toml"`), 0600)
	os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"default_model": "from-json"}`), 0600)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultModel != "from-toml" {
		t.Errorf("DefaultModel = %q, want TOML to take precedence", cfg.DefaultModel)
	}
}

func TestLoad_InvalidTheme(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EMBERCHAT_HOME", dir)

	os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[ui]\ntheme = \"neon\"\n"), 0600)

	if _, err := Load(); err == nil {
		t.Error("Load() with an invalid theme should fail validation")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EMBERCHAT_HOME", t.TempDir())
	t.Setenv("EMBERCHAT_MODEL", "qwen2.5:7b")
	t.Setenv("EMBERCHAT_PROBE_INTERVAL", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultModel != "qwen2.5:7b" {
		t.Errorf("DefaultModel = %q, want env override", cfg.DefaultModel)
	}
	if cfg.Monitor.ProbeIntervalSecs != 10 {
		t.Errorf("ProbeIntervalSecs = %d, want env override 10", cfg.Monitor.ProbeIntervalSecs)
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EMBERCHAT_HOME", dir)

	cfg := Default()
	cfg.DefaultModel = "llama3.2:3b"
	cfg.UI.Theme = "light"

	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() after save error = %v", err)
	}
	if loaded.DefaultModel != "llama3.2:3b" || loaded.UI.Theme != "light" {
		t.Errorf("reloaded config = %+v, want saved values", loaded)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, "config.toml"))
		if err != nil {
			t.Fatalf("stat config: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("config perms = %o, want 0600", perm)
		}
	}
}

func TestStateDirPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EMBERCHAT_HOME", dir)

	cfg := Default()
	got, err := cfg.StateDirPath()
	if err != nil {
		t.Fatalf("StateDirPath() error = %v", err)
	}
	if got != filepath.Join(dir, "state") {
		t.Errorf("StateDirPath() = %q, want under EMBERCHAT_HOME", got)
	}

	cfg.StateDir = "/tmp/custom-state"
	got, _ = cfg.StateDirPath()
	if got != "/tmp/custom-state" {
		t.Errorf("StateDirPath() = %q, want explicit value", got)
	}
}

func TestMonitorConfig_Durations(t *testing.T) {
	m := MonitorConfig{ProbeIntervalSecs: 30, ProbeTimeoutSecs: 5}
	if m.ProbeInterval() != 30*time.Second {
		t.Errorf("ProbeInterval() = %v", m.ProbeInterval())
	}
	if m.ProbeTimeout() != 5*time.Second {
		t.Errorf("ProbeTimeout() = %v", m.ProbeTimeout())
	}
}
