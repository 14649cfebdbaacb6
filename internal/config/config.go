// Package config holds agent and controller configuration, with JSON
// persistence under the user's home directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AgentConfig holds an agent process's configuration.
type AgentConfig struct {
	NodeID        string `json:"node_id"`
	Hostname      string `json:"hostname"`
	Nickname      string `json:"nickname"`
	Role          string `json:"role"`
	ControllerURL string `json:"controller_url"`
	MountPoint    string `json:"mount_point"`
	BaseDir       string `json:"base_dir"`
	DriveCount    int    `json:"drive_count"`
	MeshPort      int    `json:"mesh_port"`
	StunServer    string `json:"stun_server"`
	ObservAddr    string `json:"observ_addr"`
}

// ControllerConfig holds the controller process's configuration.
type ControllerConfig struct {
	HTTPAddress     string `json:"http_address"`
	ObservAddr      string `json:"observ_address"`
	HeartbeatWindow int    `json:"heartbeat_window_seconds"`
}

// DefaultAgentConfig returns an agent's default configuration; hostname is
// used as node_id and nickname when not overridden.
func DefaultAgentConfig(hostname string) *AgentConfig {
	homeDir, _ := os.UserHomeDir()
	return &AgentConfig{
		NodeID:        hostname,
		Hostname:      hostname,
		Nickname:      hostname,
		Role:          "storage",
		ControllerURL: "http://junknas-controller.junknas.svc.cluster.local",
		MountPoint:    filepath.Join(homeDir, "junknas"),
		BaseDir:       filepath.Join(homeDir, ".junknas", "agent", "storage"),
		DriveCount:    3,
		MeshPort:      42000,
		StunServer:    "stun.l.google.com:19302",
		ObservAddr:    "127.0.0.1:8081",
	}
}

// DefaultControllerConfig returns the controller's default configuration.
func DefaultControllerConfig() *ControllerConfig {
	return &ControllerConfig{
		HTTPAddress:     "127.0.0.1:8080",
		ObservAddr:      "127.0.0.1:8081",
		HeartbeatWindow: 30,
	}
}

// agentConfigPath returns <home>/.junknas/agent/config/<agentID>.conf.
func agentConfigPath(agentID string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(homeDir, ".junknas", "agent", "config", agentID+".conf"), nil
}

// controllerConfigPath returns <home>/.junknas/controller/config.conf.
func controllerConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(homeDir, ".junknas", "controller", "config.conf"), nil
}

// LoadControllerConfig reads the controller's persisted config, falling
// back to DefaultControllerConfig if no file exists yet.
func LoadControllerConfig() (*ControllerConfig, error) {
	path, err := controllerConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultControllerConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg ControllerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveControllerConfig persists cfg to <home>/.junknas/controller/config.conf.
func SaveControllerConfig(cfg *ControllerConfig) error {
	path, err := controllerConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadAgentConfig reads the persisted config for agentID, falling back to
// DefaultAgentConfig(hostname) if no file exists yet.
func LoadAgentConfig(agentID, hostname string) (*AgentConfig, error) {
	path, err := agentConfigPath(agentID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultAgentConfig(hostname), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg AgentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveAgentConfig persists cfg to <home>/.junknas/agent/config/<agentID>.conf.
func SaveAgentConfig(agentID string, cfg *AgentConfig) error {
	path, err := agentConfigPath(agentID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
