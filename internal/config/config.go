// Package config provides configuration management for Marginalia.
//
// Everything has a working default: a server started with no config file
// listens on :3000 with a local SQLite store, no auth proxy and chat
// disabled. The config file only needs to name what differs.
//
// Config file locations (priority order):
//  1. $MARGINALIA_CONFIG
//  2. ./marginalia.yaml
//  3. ~/.config/marginalia/config.yaml
//  4. /etc/marginalia/config.yaml
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Chat     ChatConfig     `yaml:"chat"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds the SQLite store location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig points at the oauth2 proxy's userinfo endpoint. Empty means
// no proxy: every request resolves to the anonymous identity.
type AuthConfig struct {
	UserinfoURL string `yaml:"userinfo_url"`
}

// ChatConfig holds the upstream completion API settings. The API key is
// read from the named environment variable, never from the file itself.
type ChatConfig struct {
	BaseURL      string `yaml:"base_url"`
	APIKeyEnv    string `yaml:"api_key_env"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

// APIKey resolves the chat API key from the environment.
func (c ChatConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// Load finds and loads the config file, or returns defaults if none found.
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, path, nil
}

// Save writes config to the specified path.
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./marginalia.db"
	}
	if c.Chat.APIKeyEnv == "" {
		c.Chat.APIKeyEnv = "MARGINALIA_CHAT_API_KEY"
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-4o-mini"
	}
}
