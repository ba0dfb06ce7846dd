// Package config loads the server's YAML configuration file and applies
// command-line flag overrides on top of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jx-codes/lootbox/internal/mcpbridge"
)

// Config is the top-level structure for lootbox.yaml.
type Config struct {
	Port int `yaml:"port"`

	// ProjectToolDir and UserToolDir are the two directories the tool index
	// scans. Project-local entries win name collisions with user-shared ones.
	ProjectToolDir string `yaml:"project_tool_dir"`
	UserToolDir    string `yaml:"user_tool_dir"`

	// ToolExtension is the file suffix the index and watcher filter on.
	ToolExtension string `yaml:"tool_extension"`

	// DataDir holds the run log's JSONL mirror and any other local state.
	DataDir string `yaml:"data_dir"`

	// SandboxCommand is the external script-runtime binary C7 spawns for
	// each submitted script, e.g. ["deno", "run", "--allow-net"]. The runtime
	// appends only the generated temp file path; any permission flags come
	// from this list.
	SandboxCommand []string `yaml:"sandbox_command"`

	// WorkerCommand is the external runtime C5 spawns to host one
	// persistent namespace worker, e.g. ["deno", "run", "--allow-net"].
	// The worker bootstrap script path and the tool file's module path are
	// appended as the final two arguments.
	WorkerCommand []string `yaml:"worker_command"`

	McpServers map[string]mcpbridge.ServerConfig `yaml:"mcp_servers"`
}

const (
	defaultConfigFile    = "lootbox.yaml"
	defaultPort          = 7337
	defaultToolExtension = ".lb.ts"
)

// Default returns a Config populated with sensible defaults, rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Port:           defaultPort,
		ProjectToolDir: filepath.Join(dir, "tools"),
		UserToolDir:    filepath.Join(userHome(), ".lootbox", "tools"),
		ToolExtension:  defaultToolExtension,
		DataDir:        filepath.Join(dir, ".lootbox"),
		SandboxCommand: []string{"deno", "run", "--allow-net"},
		WorkerCommand:  []string{"deno", "run", "--allow-net"},
		McpServers:     map[string]mcpbridge.ServerConfig{},
	}
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// Load reads path and merges it onto Default(filepath.Dir(path)).
// A missing file is not an error — the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Write serializes cfg as YAML to path, creating parent directories as needed.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// DefaultConfigPath returns the conventional config file path under dir.
func DefaultConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigFile)
}
