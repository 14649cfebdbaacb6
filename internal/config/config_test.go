package config

import (
	"testing"
)

func TestDefaultAgentConfig(t *testing.T) {
	cfg := DefaultAgentConfig("node-1")
	if cfg.NodeID != "node-1" || cfg.Role != "storage" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DriveCount != 3 {
		t.Fatalf("expected 3 drives by default, got %d", cfg.DriveCount)
	}
}

func TestSaveAndLoadAgentConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultAgentConfig("node-1")
	cfg.Nickname = "custom-nickname"
	if err := SaveAgentConfig("node-1", cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadAgentConfig("node-1", "node-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Nickname != "custom-nickname" {
		t.Fatalf("expected persisted nickname, got %q", loaded.Nickname)
	}
}

func TestLoadAgentConfigFallsBackToDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	loaded, err := LoadAgentConfig("missing-agent", "my-host")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Hostname != "my-host" {
		t.Fatalf("expected default config for missing agent, got %+v", loaded)
	}
}

func TestSaveAndLoadControllerConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultControllerConfig()
	cfg.HTTPAddress = "0.0.0.0:9090"
	if err := SaveControllerConfig(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadControllerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.HTTPAddress != "0.0.0.0:9090" {
		t.Fatalf("expected persisted address, got %q", loaded.HTTPAddress)
	}
}

func TestLoadControllerConfigFallsBackToDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	loaded, err := LoadControllerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.HeartbeatWindow != DefaultControllerConfig().HeartbeatWindow {
		t.Fatalf("expected default config, got %+v", loaded)
	}
}
